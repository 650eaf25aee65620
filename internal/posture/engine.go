package posture

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/asintel/pkg/models"
)

var adminKeywords = []string{"admin", "portal", "dashboard", "manage", "panel", "console"}
var envKeywords = []string{"dev", "staging", "test", "old", "beta", "internal", "backup", "uat", "demo"}

// severityWeights drive the weighted severity penalty of the posture score.
var severityWeights = map[models.Severity]float64{
	models.SeverityCritical:      1.0,
	models.SeverityHigh:          0.7,
	models.SeverityMedium:        0.4,
	models.SeverityLow:           0.15,
	models.SeverityInformational: 0.0,
}

var validMaturity = map[string]bool{
	models.MaturityBasic:        true,
	models.MaturityDeveloping:   true,
	models.MaturityIntermediate: true,
	models.MaturityAdvanced:     true,
}

var validAttacker = map[string]bool{
	"Opportunistic":       true,
	"Targeted":            true,
	"Advanced Persistent": true,
	"Automated Scanners":  true,
}

const sentinelFactor = "No notable risk factors identified"

// LLM produces a posture narrative for a prompt. Implementations strip
// their own transport concerns; the engine owns validation and enforcement.
type LLM interface {
	GeneratePosture(ctx context.Context, prompt string) (string, error)
}

// Engine derives organizational posture intelligence from scored assets.
// The numeric result is always anchored to a deterministic calculation; an
// optional LLM contributes only bounded narrative refinement.
type Engine struct {
	llm LLM
}

// NewEngine returns a posture engine. llm may be nil, in which case every
// report is the deterministic fallback.
func NewEngine(llm LLM) *Engine {
	return &Engine{llm: llm}
}

// Preprocess aggregates the asset vector into organizational pattern
// metrics. Raw assets are never forwarded to the LLM.
func Preprocess(domain string, assets []models.Asset) models.PostureData {
	total := len(assets)
	if total == 0 {
		return models.PostureData{
			Domain:               domain,
			SeverityBreakdown:    map[models.Severity]int{},
			EnvironmentExposure:  []models.KeywordExposure{},
			AdminSurfaceExposure: []models.KeywordExposure{},
			TopRiskFactors:       []string{},
			DataCompleteness:     "minimal",
		}
	}

	var dist models.RiskDistribution
	sum := 0
	for _, a := range assets {
		s := a.RiskScore
		sum += s
		switch {
		case s < 30:
			dist.LowRiskCount++
		case s < 60:
			dist.MediumRiskCount++
		case s < 80:
			dist.HighRiskCount++
		default:
			dist.CriticalRiskCount++
		}
		if s > dist.PeakRiskScore {
			dist.PeakRiskScore = s
		}
	}
	dist.AverageRiskScore = round1(float64(sum) / float64(total))

	severity := make(map[models.Severity]int)
	for _, a := range assets {
		severity[a.Severity]++
	}

	ipFreq := make(map[string]int)
	for _, a := range assets {
		if a.IP != "" {
			ipFreq[a.IP]++
		}
	}
	conc := models.InfrastructureConcentration{UniqueIPs: len(ipFreq)}
	for _, n := range ipFreq {
		if n > 1 {
			conc.SharedIPCount++
		}
		if n > conc.MaxAssetsPerIP {
			conc.MaxAssetsPerIP = n
		}
	}

	envExposed := []models.KeywordExposure{}
	adminExposed := []models.KeywordExposure{}
	for _, a := range assets {
		sub := strings.ToLower(a.Subdomain)
		for _, kw := range envKeywords {
			if strings.Contains(sub, kw) {
				envExposed = append(envExposed, models.KeywordExposure{Subdomain: a.Subdomain, Keyword: kw})
				break
			}
		}
		for _, kw := range adminKeywords {
			if strings.Contains(sub, kw) {
				adminExposed = append(adminExposed, models.KeywordExposure{Subdomain: a.Subdomain, Keyword: kw})
				break
			}
		}
	}
	if len(envExposed) > 5 {
		envExposed = envExposed[:5]
	}
	if len(adminExposed) > 5 {
		adminExposed = adminExposed[:5]
	}

	var density models.ServiceDensity
	portSum := 0
	withPorts := 0
	for _, a := range assets {
		n := len(a.OpenPorts)
		portSum += n
		if n == 0 {
			density.AssetsWithNoPorts++
		} else {
			withPorts++
		}
		if n > density.MaxPortsOnSingleAsset {
			density.MaxPortsOnSingleAsset = n
		}
	}
	density.AveragePortsPerAsset = round1(float64(portSum) / float64(total))

	factors := []string{}
	seen := make(map[string]bool)
	for _, a := range assets {
		for _, f := range a.RiskFactors {
			if f == sentinelFactor || seen[f] {
				continue
			}
			seen[f] = true
			factors = append(factors, f)
		}
	}
	if len(factors) > 10 {
		factors = factors[:10]
	}

	completeness := "minimal"
	if withPorts*2 > total {
		completeness = "comprehensive"
	} else if withPorts > 0 {
		completeness = "moderate"
	}

	return models.PostureData{
		Domain:                      domain,
		TotalAssets:                 total,
		RiskDistribution:            dist,
		SeverityBreakdown:           severity,
		InfrastructureConcentration: conc,
		EnvironmentExposure:         envExposed,
		AdminSurfaceExposure:        adminExposed,
		ServiceDensity:              density,
		TopRiskFactors:              factors,
		DataCompleteness:            completeness,
	}
}

// DeterministicScore is the posture anchor: a weighted severity penalty on
// a 60-point scale, plus concentration and density penalties, with the
// critical ceiling and all-quiet floor folded in so the anchor itself
// satisfies the enforcement rules.
func DeterministicScore(data models.PostureData) int {
	total := data.TotalAssets
	if total == 0 {
		return 85
	}

	weighted := 0.0
	for sev, w := range severityWeights {
		weighted += float64(data.SeverityBreakdown[sev]) * w
	}
	severityPenalty := weighted / float64(total) * 60

	shared := float64(data.InfrastructureConcentration.SharedIPCount)
	maxPerIP := data.InfrastructureConcentration.MaxAssetsPerIP
	if maxPerIP < 1 {
		maxPerIP = 1
	}
	concentrationPenalty := math.Min(shared*2+float64(maxPerIP-1)*1.5, 15)

	densityPenalty := 0.0
	if avg := data.ServiceDensity.AveragePortsPerAsset; avg > 1.5 {
		densityPenalty = math.Min(avg*1.5, 10)
	}

	score := clampScore(int(math.Round(100 - severityPenalty - concentrationPenalty - densityPenalty)))

	if data.RiskDistribution.CriticalRiskCount > 0 && score > 45 {
		score = 45
	}
	if data.RiskDistribution.LowRiskCount == total && score < 75 {
		score = 75
	}
	return score
}

// maturityFor applies the maturity bands with the hard ceiling under
// critical-band assets.
func maturityFor(score int, data models.PostureData) string {
	if data.RiskDistribution.CriticalRiskCount > 0 {
		if score >= 30 {
			return models.MaturityDeveloping
		}
		return models.MaturityBasic
	}
	switch {
	case score >= 75:
		return models.MaturityAdvanced
	case score >= 55:
		return models.MaturityIntermediate
	case score >= 30:
		return models.MaturityDeveloping
	default:
		return models.MaturityBasic
	}
}

// Fallback builds the fully deterministic report used when no LLM is
// configured or the LLM path fails. Its score always equals the anchor.
func Fallback(domain string, data models.PostureData) models.PostureReport {
	score := DeterministicScore(data)
	risk := data.RiskDistribution
	total := data.TotalAssets

	attacker := "Automated Scanners"
	if risk.CriticalRiskCount > 0 {
		attacker = "Targeted"
	} else if risk.HighRiskCount >= 2 {
		attacker = "Opportunistic"
	}

	envCount := len(data.EnvironmentExposure)
	adminCount := len(data.AdminSurfaceExposure)
	elevated := risk.HighRiskCount + risk.CriticalRiskCount

	var theme string
	switch {
	case adminCount > 0 && elevated > 0:
		theme = "Administrative surface compounded by exposed services"
	case adminCount > 0:
		theme = "Administrative interface exposure"
	case envCount > 0:
		theme = "Non-production environment exposure"
	case elevated > 0:
		theme = "Elevated service exposure"
	default:
		theme = "Standard web service footprint"
	}

	var improvements []string
	if adminCount > 0 {
		improvements = append(improvements, "Restrict administrative interfaces from public access")
	}
	if envCount > 0 {
		improvements = append(improvements, "Isolate non-production environments behind VPN or allowlists")
	}
	if elevated > 0 {
		improvements = append(improvements, "Remediate high-severity assets through port restriction and access controls")
	}
	if len(improvements) == 0 {
		improvements = append(improvements, "Maintain current posture with periodic reassessment")
	}
	if len(improvements) > 3 {
		improvements = improvements[:3]
	}

	outlookLevel := "low"
	if score < 50 {
		outlookLevel = "elevated"
	} else if score < 75 {
		outlookLevel = "moderate"
	}

	confidence := 0.4
	if total >= 5 && data.DataCompleteness == "comprehensive" {
		confidence = 0.75
	} else if total >= 3 {
		confidence = 0.55
	}

	return models.PostureReport{
		PostureScore:          score,
		MaturityLevel:         maturityFor(score, data),
		DominantRiskTheme:     theme,
		LikelyAttackerProfile: attacker,
		StrategicRiskOutlook: fmt.Sprintf("%s presents %s organizational risk across %d discovered assets.",
			domain, outlookLevel, total),
		PriorityImprovements: improvements,
		AssessmentBasis: []string{
			fmt.Sprintf("%d assets analyzed, avg risk %.1f", total, risk.AverageRiskScore),
			fmt.Sprintf("Severity: %s", formatSeverityBreakdown(data.SeverityBreakdown)),
			fmt.Sprintf("Data completeness: %s", data.DataCompleteness),
		},
		ConfidenceScore: confidence,
	}
}

// Generate produces the posture report for a scan, preferring the LLM path
// and degrading to the deterministic fallback on any failure.
func (e *Engine) Generate(ctx context.Context, domain string, assets []models.Asset) models.PostureReport {
	data := Preprocess(domain, assets)
	anchor := DeterministicScore(data)

	log.Printf("posture: request for %s: %d assets, anchor=%d, completeness=%s",
		domain, data.TotalAssets, anchor, data.DataCompleteness)

	if data.TotalAssets == 0 || e.llm == nil {
		return Fallback(domain, data)
	}

	raw, err := e.llm.GeneratePosture(ctx, buildPrompt(domain, data, anchor))
	if err != nil {
		log.Printf("posture: LLM failed (%v), using fallback", err)
		return Fallback(domain, data)
	}

	candidate, ok := parseCandidate(raw)
	if !ok {
		log.Printf("posture: LLM output failed schema validation, using fallback")
		return Fallback(domain, data)
	}

	report := enforce(candidate, data, anchor)
	log.Printf("posture: generated score=%d, maturity=%s (anchor=%d)",
		report.PostureScore, report.MaturityLevel, anchor)
	return report
}

func buildPrompt(domain string, data models.PostureData, anchor int) string {
	payload, _ := json.MarshalIndent(data, "", "  ")
	return fmt.Sprintf(`You are a strategic cybersecurity intelligence analyst.

TASK: Organizational security posture assessment for %s.

Evaluate ORGANIZATIONAL PATTERNS, not individual exploits.
Tactical findings are covered separately. Do not restate them.

RULES:
- Output ONLY valid JSON, no markdown, no code fences
- Total output must be under 250 words
- Do NOT reference external benchmarks or industry statistics
- Do NOT fabricate vulnerabilities or CVEs
- Do NOT contradict the deterministic scores
- Be concise, analytical, board-ready

The deterministic posture score anchor is %d/100.
Your posture_score must be within 10 points of this anchor.

OUTPUT FORMAT (pure JSON):
{
  "posture_score": <int 0-100, within 10 of %d>,
  "maturity_level": "<Basic|Developing|Intermediate|Advanced>",
  "dominant_risk_theme": "<primary systemic weakness>",
  "likely_attacker_profile": "<Opportunistic|Targeted|Advanced Persistent|Automated Scanners>",
  "strategic_risk_outlook": "<1-2 sentence forward-looking assessment>",
  "priority_improvements": ["Action 1", "Action 2", "Action 3"],
  "assessment_basis": ["Factor 1", "Factor 2", "Factor 3"],
  "confidence_score": <float 0.0-1.0>
}

DATA:
%s`, domain, anchor, anchor, payload)
}

// candidate mirrors the LLM schema with pointer fields so missing keys are
// distinguishable from zero values.
type candidate struct {
	PostureScore          *float64  `json:"posture_score"`
	MaturityLevel         *string   `json:"maturity_level"`
	DominantRiskTheme     *string   `json:"dominant_risk_theme"`
	LikelyAttackerProfile *string   `json:"likely_attacker_profile"`
	StrategicRiskOutlook  *string   `json:"strategic_risk_outlook"`
	PriorityImprovements  []string  `json:"priority_improvements"`
	AssessmentBasis       []string  `json:"assessment_basis"`
	ConfidenceScore       *float64  `json:"confidence_score"`
}

func parseCandidate(raw string) (candidate, bool) {
	var c candidate
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, false
	}
	if c.PostureScore == nil || c.MaturityLevel == nil || c.DominantRiskTheme == nil ||
		c.LikelyAttackerProfile == nil || c.StrategicRiskOutlook == nil || c.ConfidenceScore == nil {
		return c, false
	}
	if *c.PostureScore < 0 || *c.PostureScore > 100 {
		return c, false
	}
	if !validMaturity[*c.MaturityLevel] {
		return c, false
	}
	if !validAttacker[*c.LikelyAttackerProfile] {
		return c, false
	}
	if len(c.PriorityImprovements) < 1 || len(c.AssessmentBasis) < 1 {
		return c, false
	}
	if *c.ConfidenceScore < 0 || *c.ConfidenceScore > 1 {
		return c, false
	}
	return c, true
}

// enforce clamps the LLM result to the deterministic constraints: the ±10
// anchor band, the severity ceilings, the all-quiet floor, the maturity
// bands, and the completeness-driven confidence bounds.
func enforce(c candidate, data models.PostureData, anchor int) models.PostureReport {
	total := data.TotalAssets
	risk := data.RiskDistribution

	score := *c.PostureScore
	if score < float64(anchor-10) {
		score = float64(anchor - 10)
	}
	if score > float64(anchor+10) {
		score = float64(anchor + 10)
	}

	if risk.CriticalRiskCount > 0 && score > 45 {
		score = 45
	}
	if total > 0 && float64(risk.HighRiskCount+risk.CriticalRiskCount)/float64(total) > 0.4 && score > 55 {
		score = 55
	}
	if total > 0 && risk.LowRiskCount == total && score < 75 {
		score = 75
	}

	finalScore := clampScore(int(math.Round(score)))

	confidence := *c.ConfidenceScore
	if data.DataCompleteness == "comprehensive" && total >= 5 {
		confidence = math.Max(confidence, 0.75)
	} else if data.DataCompleteness == "minimal" || total < 3 {
		confidence = math.Min(confidence, 0.55)
	}

	return models.PostureReport{
		PostureScore:          finalScore,
		MaturityLevel:         maturityFor(finalScore, data),
		DominantRiskTheme:     *c.DominantRiskTheme,
		LikelyAttackerProfile: *c.LikelyAttackerProfile,
		StrategicRiskOutlook:  *c.StrategicRiskOutlook,
		PriorityImprovements:  c.PriorityImprovements,
		AssessmentBasis:       c.AssessmentBasis,
		ConfidenceScore:       round2(confidence),
	}
}

func formatSeverityBreakdown(breakdown map[models.Severity]int) string {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, breakdown[models.Severity(k)]))
	}
	return strings.Join(parts, ", ")
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
