package models

import (
	"time"

	"github.com/google/uuid"
)

// EventTypeScanCompleted is emitted after a scan record is persisted.
const EventTypeScanCompleted = "scan.completed"

// ScanCompletedEvent announces a finished scan to downstream consumers.
type ScanCompletedEvent struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Domain      string      `json:"domain"`
	ScanID      string      `json:"scan_id"`
	TotalAssets int         `json:"total_assets"`
	RiskSummary RiskSummary `json:"risk_summary"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewScanCompletedEvent builds the event for a persisted scan record.
func NewScanCompletedEvent(rec ScanRecord) ScanCompletedEvent {
	return ScanCompletedEvent{
		ID:          uuid.New().String(),
		Type:        EventTypeScanCompleted,
		Domain:      rec.Domain,
		ScanID:      rec.ScanID,
		TotalAssets: rec.TotalAssets,
		RiskSummary: rec.RiskSummary,
		Timestamp:   time.Now().UTC(),
	}
}
