package posture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asintel/pkg/models"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) GeneratePosture(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func scoredAsset(sub, ip string, score int, ports []int, factors ...string) models.Asset {
	return models.Asset{
		Subdomain:   sub,
		IP:          ip,
		OpenPorts:   ports,
		RiskScore:   score,
		Severity:    models.ClassifySeverity(score),
		RiskFactors: factors,
	}
}

func mixedAssets() []models.Asset {
	return []models.Asset{
		scoredAsset("admin.example.com", "10.0.0.1", 85, []int{22, 3306},
			"Port 22 open (remote access)", "Port 3306 open (database)"),
		scoredAsset("dev.example.com", "10.0.0.2", 55, []int{8080},
			"Port 8080 open (alt web)"),
		scoredAsset("www.example.com", "10.0.0.3", 15, nil, "No notable risk factors identified"),
		scoredAsset("static.example.com", "10.0.0.4", 5, nil, "No notable risk factors identified"),
	}
}

func TestPreprocess(t *testing.T) {
	data := Preprocess("example.com", mixedAssets())

	assert.Equal(t, 4, data.TotalAssets)
	assert.Equal(t, 2, data.RiskDistribution.LowRiskCount)
	assert.Equal(t, 1, data.RiskDistribution.MediumRiskCount)
	assert.Equal(t, 0, data.RiskDistribution.HighRiskCount)
	assert.Equal(t, 1, data.RiskDistribution.CriticalRiskCount)
	assert.Equal(t, 85, data.RiskDistribution.PeakRiskScore)
	assert.Equal(t, 40.0, data.RiskDistribution.AverageRiskScore)

	assert.Equal(t, 1, data.SeverityBreakdown[models.SeverityCritical])
	assert.Equal(t, 1, data.SeverityBreakdown[models.SeverityHigh])

	assert.Equal(t, 4, data.InfrastructureConcentration.UniqueIPs)
	assert.Equal(t, 0, data.InfrastructureConcentration.SharedIPCount)

	require.Len(t, data.AdminSurfaceExposure, 1)
	assert.Equal(t, "admin", data.AdminSurfaceExposure[0].Keyword)
	require.Len(t, data.EnvironmentExposure, 1)
	assert.Equal(t, "dev", data.EnvironmentExposure[0].Keyword)

	// Sentinel factors are excluded, real ones deduped in first-seen order.
	assert.Equal(t, []string{
		"Port 22 open (remote access)",
		"Port 3306 open (database)",
		"Port 8080 open (alt web)",
	}, data.TopRiskFactors)

	// 2 of 4 assets expose ports: not over half.
	assert.Equal(t, "moderate", data.DataCompleteness)
}

func TestDeterministicScoreCriticalCeiling(t *testing.T) {
	data := Preprocess("example.com", mixedAssets())

	// Weighted severity penalty (1.0+0.7+0.15)/4*60 = 27.75 gives 72, then
	// the critical-band ceiling caps at 45.
	assert.Equal(t, 45, DeterministicScore(data))
	assert.Equal(t, models.MaturityDeveloping, maturityFor(45, data))
}

func TestDeterministicScoreAllQuietFloor(t *testing.T) {
	assets := []models.Asset{
		scoredAsset("a.example.com", "10.0.0.1", 15, nil),
		scoredAsset("b.example.com", "10.0.0.2", 10, nil),
		scoredAsset("c.example.com", "10.0.0.3", 5, nil),
	}
	data := Preprocess("example.com", assets)

	score := DeterministicScore(data)
	assert.GreaterOrEqual(t, score, 75)
	assert.Equal(t, models.MaturityAdvanced, maturityFor(score, data))
}

func TestDeterministicScoreEmptySet(t *testing.T) {
	data := Preprocess("example.com", nil)
	assert.Equal(t, 85, DeterministicScore(data))
}

func TestFallbackMatchesAnchor(t *testing.T) {
	data := Preprocess("example.com", mixedAssets())
	report := Fallback("example.com", data)

	assert.Equal(t, DeterministicScore(data), report.PostureScore)
	assert.Equal(t, models.MaturityDeveloping, report.MaturityLevel)
	assert.Equal(t, "Targeted", report.LikelyAttackerProfile)
	assert.Equal(t, "Administrative surface compounded by exposed services", report.DominantRiskTheme)
	assert.Contains(t, report.PriorityImprovements, "Restrict administrative interfaces from public access")
	assert.Len(t, report.AssessmentBasis, 3)
	assert.Equal(t, 0.55, report.ConfidenceScore)
}

func TestFallbackQuietFootprint(t *testing.T) {
	report := Fallback("example.com", Preprocess("example.com", nil))

	assert.Equal(t, 85, report.PostureScore)
	assert.Equal(t, models.MaturityAdvanced, report.MaturityLevel)
	assert.Equal(t, "Automated Scanners", report.LikelyAttackerProfile)
	assert.Equal(t, "Standard web service footprint", report.DominantRiskTheme)
	assert.Equal(t, []string{"Maintain current posture with periodic reassessment"}, report.PriorityImprovements)
	assert.Equal(t, 0.4, report.ConfidenceScore)
}

func TestGenerateWithoutLLMUsesFallback(t *testing.T) {
	e := NewEngine(nil)
	report := e.Generate(context.Background(), "example.com", mixedAssets())
	assert.Equal(t, Fallback("example.com", Preprocess("example.com", mixedAssets())), report)
}

func TestGenerateLLMFailureUsesFallback(t *testing.T) {
	e := NewEngine(&fakeLLM{err: errors.New("backend unavailable")})
	report := e.Generate(context.Background(), "example.com", mixedAssets())
	assert.Equal(t, 45, report.PostureScore)
	assert.Equal(t, "Targeted", report.LikelyAttackerProfile)
}

func TestGenerateClampsLLMScoreToAnchorBand(t *testing.T) {
	llm := &fakeLLM{response: `{
		"posture_score": 95,
		"maturity_level": "Advanced",
		"dominant_risk_theme": "Sprawling administrative exposure",
		"likely_attacker_profile": "Targeted",
		"strategic_risk_outlook": "Exposure is likely to widen without consolidation.",
		"priority_improvements": ["Consolidate admin surfaces"],
		"assessment_basis": ["4 assets reviewed"],
		"confidence_score": 0.9
	}`}
	e := NewEngine(llm)

	report := e.Generate(context.Background(), "example.com", mixedAssets())

	// Anchor is 45; 95 clamps to 55, then the critical ceiling caps at 45
	// and the maturity bands pin the level back down.
	assert.Equal(t, 45, report.PostureScore)
	assert.Equal(t, models.MaturityDeveloping, report.MaturityLevel)
	assert.Equal(t, "Sprawling administrative exposure", report.DominantRiskTheme)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "anchor is 45/100")
}

func TestGenerateRejectsInvalidSchema(t *testing.T) {
	llm := &fakeLLM{response: `{"posture_score": 50, "maturity_level": "Legendary"}`}
	e := NewEngine(llm)

	report := e.Generate(context.Background(), "example.com", mixedAssets())
	assert.Equal(t, Fallback("example.com", Preprocess("example.com", mixedAssets())), report)
}

func TestGenerateConfidenceBounds(t *testing.T) {
	assets := []models.Asset{
		scoredAsset("a.example.com", "10.0.0.1", 15, []int{80}),
		scoredAsset("b.example.com", "10.0.0.2", 15, []int{80}),
		scoredAsset("c.example.com", "10.0.0.3", 15, []int{80}),
		scoredAsset("d.example.com", "10.0.0.4", 15, []int{80}),
		scoredAsset("e.example.com", "10.0.0.5", 15, []int{80}),
	}
	llm := &fakeLLM{response: `{
		"posture_score": 80,
		"maturity_level": "Advanced",
		"dominant_risk_theme": "Uniform web footprint",
		"likely_attacker_profile": "Automated Scanners",
		"strategic_risk_outlook": "Stable exposure profile.",
		"priority_improvements": ["Keep patching"],
		"assessment_basis": ["5 assets reviewed"],
		"confidence_score": 0.2
	}`}
	e := NewEngine(llm)

	report := e.Generate(context.Background(), "example.com", assets)

	// Comprehensive data with 5 assets raises confidence to at least 0.75.
	assert.Equal(t, 0.75, report.ConfidenceScore)
	assert.GreaterOrEqual(t, report.PostureScore, 75)
	assert.Equal(t, models.MaturityAdvanced, report.MaturityLevel)
}
