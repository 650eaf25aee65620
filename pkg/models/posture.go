package models

// PostureReport is the strategic assessment returned by POST /posture.
type PostureReport struct {
	PostureScore          int      `json:"posture_score" bson:"posture_score"`
	MaturityLevel         string   `json:"maturity_level" bson:"maturity_level"`
	DominantRiskTheme     string   `json:"dominant_risk_theme" bson:"dominant_risk_theme"`
	LikelyAttackerProfile string   `json:"likely_attacker_profile" bson:"likely_attacker_profile"`
	StrategicRiskOutlook  string   `json:"strategic_risk_outlook" bson:"strategic_risk_outlook"`
	PriorityImprovements  []string `json:"priority_improvements" bson:"priority_improvements"`
	AssessmentBasis       []string `json:"assessment_basis" bson:"assessment_basis"`
	ConfidenceScore       float64  `json:"confidence_score" bson:"confidence_score"`
}

// Maturity levels, ordered weakest to strongest.
const (
	MaturityBasic        = "Basic"
	MaturityDeveloping   = "Developing"
	MaturityIntermediate = "Intermediate"
	MaturityAdvanced     = "Advanced"
)

// RiskDistribution aggregates per-asset scores into posture inputs.
type RiskDistribution struct {
	LowRiskCount      int     `json:"low_risk_count"`
	MediumRiskCount   int     `json:"medium_risk_count"`
	HighRiskCount     int     `json:"high_risk_count"`
	CriticalRiskCount int     `json:"critical_risk_count"`
	AverageRiskScore  float64 `json:"average_risk_score"`
	PeakRiskScore     int     `json:"peak_risk_score"`
}

// InfrastructureConcentration describes how assets share IP space.
type InfrastructureConcentration struct {
	UniqueIPs      int `json:"unique_ips"`
	SharedIPCount  int `json:"shared_ip_count"`
	MaxAssetsPerIP int `json:"max_assets_per_ip"`
}

// KeywordExposure records a hostname that matched a naming keyword.
type KeywordExposure struct {
	Subdomain string `json:"subdomain"`
	Keyword   string `json:"keyword"`
}

// ServiceDensity summarizes open-port spread across the asset set.
type ServiceDensity struct {
	AveragePortsPerAsset  float64 `json:"average_ports_per_asset"`
	MaxPortsOnSingleAsset int     `json:"max_ports_on_single_asset"`
	AssetsWithNoPorts     int     `json:"assets_with_no_ports"`
}

// PostureData is the deterministic preprocessing payload handed to the
// posture scorer and, serialized, to the LLM.
type PostureData struct {
	Domain                      string                      `json:"domain"`
	TotalAssets                 int                         `json:"total_assets"`
	RiskDistribution            RiskDistribution            `json:"risk_distribution"`
	SeverityBreakdown           map[Severity]int            `json:"severity_breakdown"`
	InfrastructureConcentration InfrastructureConcentration `json:"infrastructure_concentration"`
	EnvironmentExposure         []KeywordExposure           `json:"environment_exposure"`
	AdminSurfaceExposure        []KeywordExposure           `json:"admin_surface_exposure"`
	ServiceDensity              ServiceDensity              `json:"service_density"`
	TopRiskFactors              []string                    `json:"top_risk_factors"`
	DataCompleteness            string                      `json:"data_completeness"`
}
