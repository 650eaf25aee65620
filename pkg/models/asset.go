package models

import "time"

// Severity classifies an asset's risk score into an ordered band.
type Severity string

const (
	SeverityInformational Severity = "Informational"
	SeverityLow           Severity = "Low"
	SeverityMedium        Severity = "Medium"
	SeverityHigh          Severity = "High"
	SeverityCritical      Severity = "Critical"
)

// ClassifySeverity returns the severity band for a clamped risk score.
func ClassifySeverity(score int) Severity {
	switch {
	case score >= 70:
		return SeverityCritical
	case score >= 50:
		return SeverityHigh
	case score >= 30:
		return SeverityMedium
	case score >= 10:
		return SeverityLow
	default:
		return SeverityInformational
	}
}

// Service is one observed network service on an asset, keyed by port.
type Service struct {
	Port      int    `json:"port" bson:"port"`
	Product   string `json:"product,omitempty" bson:"product,omitempty"`
	Version   string `json:"version,omitempty" bson:"version,omitempty"`
	Transport string `json:"transport,omitempty" bson:"transport,omitempty"`
}

// Asset is one hostname resolved during a scan, enriched with exposure
// intelligence and a deterministic risk assessment.
type Asset struct {
	Subdomain   string    `json:"subdomain" bson:"subdomain"`
	IP          string    `json:"ip" bson:"ip"`
	OpenPorts   []int     `json:"open_ports" bson:"open_ports"`
	Services    []Service `json:"services,omitempty" bson:"services,omitempty"`
	OS          string    `json:"os,omitempty" bson:"os,omitempty"`
	Org         string    `json:"org,omitempty" bson:"org,omitempty"`
	ISP         string    `json:"isp,omitempty" bson:"isp,omitempty"`
	RiskScore   int       `json:"risk_score" bson:"risk_score"`
	Severity    Severity  `json:"severity" bson:"severity"`
	RiskFactors []string  `json:"risk_factors" bson:"risk_factors"`
}

// RiskSummary is the per-severity histogram stored with every scan record.
type RiskSummary struct {
	Critical      int `json:"critical" bson:"critical"`
	High          int `json:"high" bson:"high"`
	Medium        int `json:"medium" bson:"medium"`
	Low           int `json:"low" bson:"low"`
	Informational int `json:"informational" bson:"informational"`
}

// BuildRiskSummary counts assets per severity band.
func BuildRiskSummary(assets []Asset) RiskSummary {
	var s RiskSummary
	for _, a := range assets {
		switch a.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		case SeverityInformational:
			s.Informational++
		}
	}
	return s
}

// DNSRecords holds optional best-effort record lookups for the apex domain.
type DNSRecords struct {
	MX    []string `json:"mx,omitempty" bson:"mx,omitempty"`
	TXT   []string `json:"txt,omitempty" bson:"txt,omitempty"`
	CNAME []string `json:"cname,omitempty" bson:"cname,omitempty"`
}

// Empty reports whether no record lookup returned anything.
func (r DNSRecords) Empty() bool {
	return len(r.MX) == 0 && len(r.TXT) == 0 && len(r.CNAME) == 0
}

// ScanRecord is the persisted artifact of one scan. It is inserted once,
// retrievable by id, and never mutated.
type ScanRecord struct {
	ScanID      string      `json:"scan_id" bson:"-"`
	Domain      string      `json:"domain" bson:"domain"`
	Timestamp   string      `json:"timestamp" bson:"timestamp"`
	Assets      []Asset     `json:"assets" bson:"assets"`
	TotalAssets int         `json:"total_assets" bson:"total_assets"`
	RiskSummary RiskSummary `json:"risk_summary" bson:"risk_summary"`
	DNSRecords  *DNSRecords `json:"dns_records,omitempty" bson:"dns_records,omitempty"`
}

// NewScanRecord assembles an unsaved scan record with an RFC 3339 UTC
// timestamp and the severity histogram. The scan id is assigned at insert.
func NewScanRecord(domain string, assets []Asset, records *DNSRecords) ScanRecord {
	return ScanRecord{
		Domain:      domain,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Assets:      assets,
		TotalAssets: len(assets),
		RiskSummary: BuildRiskSummary(assets),
		DNSRecords:  records,
	}
}
