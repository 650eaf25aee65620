package kafka

// TopicScanCompleted carries one event per persisted scan. Events are
// keyed by domain so all scans of a domain land on one partition.
const TopicScanCompleted = "scan.completed"
