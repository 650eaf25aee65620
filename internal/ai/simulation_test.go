package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asintel/pkg/models"
)

func baseGraph() models.AttackGraph {
	entry := "admin.example.com"
	return models.AttackGraph{
		EntryPoint: &entry,
		AttackPath: []models.AttackStep{
			{
				Step: 1, Stage: "Initial Access", Subdomain: "admin.example.com",
				IP: "10.0.0.1", Technique: "Valid Accounts - Admin Panel Exposure",
				MitreID: "T1078", Evidence: []string{"Port 22 open (remote access)"},
				ConfidenceScore: 0.95,
			},
			{
				Step: 2, Stage: "Privilege Escalation", Subdomain: "admin.example.com",
				IP: "10.0.0.1", Technique: "Brute Force - SSH Credential Access",
				MitreID: "T1110.001", Evidence: []string{"Port 22 directly accessible from external network"},
				ConfidenceScore: 0.95,
			},
		},
		ImpactSummary: "Deterministic impact summary.",
		OverallRisk:   "High",
	}
}

func TestMergeEnhancementAppliesNarrativeOnly(t *testing.T) {
	base := baseGraph()
	raw := `{
		"impact_summary": "An attacker could chain admin exposure into full compromise.",
		"mitigation_notes": ["Require VPN for SSH", "", "  ", "Enable MFA on admin portals"],
		"overall_risk": "Critical",
		"attack_path": [
			{"step": 1, "impact_detail": "Initial foothold through the exposed panel."},
			{"step": 2, "impact_detail": "Credential stuffing against SSH."}
		]
	}`

	merged := MergeEnhancement(base, raw)

	assert.Equal(t, "An attacker could chain admin exposure into full compromise.", merged.ImpactSummary)
	assert.Equal(t, []string{"Require VPN for SSH", "Enable MFA on admin portals"}, merged.MitigationNotes)
	assert.Equal(t, "Critical", merged.OverallRisk)
	assert.Equal(t, "Initial foothold through the exposed panel.", merged.AttackPath[0].ImpactDetail)
	assert.Equal(t, "Credential stuffing against SSH.", merged.AttackPath[1].ImpactDetail)

	// Base graph is never mutated.
	assert.Empty(t, base.AttackPath[0].ImpactDetail)
	assert.Equal(t, "Deterministic impact summary.", base.ImpactSummary)
}

func TestMergeEnhancementIgnoresTampering(t *testing.T) {
	base := baseGraph()
	// The LLM tries to rewrite a technique, inject a bogus step and use an
	// invalid risk level. All of it must be discarded.
	raw := `{
		"overall_risk": "Apocalyptic",
		"attack_path": [
			{"step": 1, "technique": "Resource Hijacking", "mitre_id": "T1496", "impact_detail": "ok"},
			{"step": 99, "impact_detail": "phantom step"}
		]
	}`

	merged := MergeEnhancement(base, raw)

	assert.Equal(t, "High", merged.OverallRisk)
	assert.Equal(t, "T1078", merged.AttackPath[0].MitreID)
	assert.Equal(t, "Valid Accounts - Admin Panel Exposure", merged.AttackPath[0].Technique)
	assert.Equal(t, "ok", merged.AttackPath[0].ImpactDetail)
	require.Len(t, merged.AttackPath, 2)
	assert.Equal(t, "Deterministic impact summary.", merged.ImpactSummary)
}

func TestMergeEnhancementUnparseableReturnsBase(t *testing.T) {
	base := baseGraph()
	merged := MergeEnhancement(base, "sorry, I cannot produce JSON today")
	assert.Equal(t, base, merged)
}

func TestMergeEnhancementStripsCodeFence(t *testing.T) {
	base := baseGraph()
	raw := "```json\n{\"impact_summary\": \"Fenced narrative.\"}\n```"
	merged := MergeEnhancement(base, raw)
	assert.Equal(t, "Fenced narrative.", merged.ImpactSummary)
}

func TestValidateGraph(t *testing.T) {
	assert.True(t, ValidateGraph(baseGraph()))

	g := baseGraph()
	g.OverallRisk = "Extreme"
	assert.False(t, ValidateGraph(g))

	g = baseGraph()
	g.ImpactSummary = "   "
	assert.False(t, ValidateGraph(g))

	g = baseGraph()
	g.AttackPath[0].MitreID = ""
	assert.False(t, ValidateGraph(g))

	g = baseGraph()
	g.AttackPath[1].ConfidenceScore = 1.2
	assert.False(t, ValidateGraph(g))

	g = baseGraph()
	g.AttackPath[0].Evidence = nil
	assert.False(t, ValidateGraph(g))

	// An empty path is structurally valid (the no-candidates response).
	empty := models.AttackGraph{
		AttackPath:    []models.AttackStep{},
		ImpactSummary: "No viable attack path identified based on current exposure.",
		OverallRisk:   "Low",
	}
	assert.True(t, ValidateGraph(empty))
}
