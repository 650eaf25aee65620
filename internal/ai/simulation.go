package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/asintel/pkg/models"
)

var validOverallRisk = map[string]bool{"Low": true, "Medium": true, "High": true, "Critical": true}

const simulationSystemPrompt = `You are a senior penetration tester enhancing a structured attack simulation report.

You will receive a pre-built, evidence-based attack graph with MITRE ATT&CK mappings.
Your job is STRICTLY LIMITED to:
  1. Adding an "impact_detail" narrative to each step (1-2 sentences of technical context)
  2. Enhancing the "impact_summary" with a realistic executive-level assessment
  3. Adding "mitigation_notes", a list of specific defensive recommendations

STRICT RULES:
- Do NOT change: step numbers, stages, subdomains, IPs, techniques, mitre_ids, evidence, confidence_scores
- Do NOT fabricate CVE numbers or vulnerabilities not in the evidence
- Do NOT add new attack steps or assets
- Return valid JSON only, no markdown, no code fences

RESPONSE FORMAT (pure JSON):
{
  "attack_path": [
    {
      "step": 1,
      "impact_detail": "<1-2 sentence technical narrative>"
    }
  ],
  "impact_summary": "<enhanced executive impact summary>",
  "mitigation_notes": [
    "<specific defensive recommendation 1>",
    "<specific defensive recommendation 2>"
  ],
  "overall_risk": "Low | Medium | High | Critical"
}`

// enhancement is the narrow schema the LLM is allowed to contribute.
// Decoding into it discards any attempt to alter structural fields.
type enhancement struct {
	ImpactSummary   *string  `json:"impact_summary"`
	MitigationNotes []string `json:"mitigation_notes"`
	OverallRisk     *string  `json:"overall_risk"`
	AttackPath      []struct {
		Step         int     `json:"step"`
		ImpactDetail *string `json:"impact_detail"`
	} `json:"attack_path"`
}

// MergeEnhancement folds LLM narrative into a copy of the deterministic
// graph. Only impact_summary, mitigation_notes, overall_risk and per-step
// impact_detail can land; step identity fields, evidence and confidence
// scores always come from the base graph. Unparseable input yields the
// base graph unchanged.
func MergeEnhancement(base models.AttackGraph, raw string) models.AttackGraph {
	result := base.Clone()

	var enh enhancement
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &enh); err != nil {
		log.Printf("ai: enhancement parse failed (%v), using deterministic graph", err)
		return result
	}

	if enh.ImpactSummary != nil {
		result.ImpactSummary = *enh.ImpactSummary
	}

	if enh.MitigationNotes != nil {
		notes := make([]string, 0, len(enh.MitigationNotes))
		for _, n := range enh.MitigationNotes {
			if strings.TrimSpace(n) != "" {
				notes = append(notes, n)
			}
		}
		result.MitigationNotes = notes
	}

	for _, aiStep := range enh.AttackPath {
		if aiStep.ImpactDetail == nil {
			continue
		}
		for i := range result.AttackPath {
			if result.AttackPath[i].Step == aiStep.Step {
				result.AttackPath[i].ImpactDetail = *aiStep.ImpactDetail
				break
			}
		}
	}

	if enh.OverallRisk != nil && validOverallRisk[*enh.OverallRisk] {
		result.OverallRisk = *enh.OverallRisk
	}

	return result
}

// ValidateGraph checks the structural invariants of a simulation result.
func ValidateGraph(g models.AttackGraph) bool {
	if !validOverallRisk[g.OverallRisk] {
		return false
	}
	if strings.TrimSpace(g.ImpactSummary) == "" {
		return false
	}
	for _, s := range g.AttackPath {
		if s.Stage == "" || s.Technique == "" || s.MitreID == "" {
			return false
		}
		if s.Evidence == nil {
			return false
		}
		if s.ConfidenceScore < 0 || s.ConfidenceScore > 1 {
			return false
		}
	}
	return true
}

// EnhanceSimulation asks Groq for narrative on top of the deterministic
// graph. Any failure, including a merge result that no longer validates,
// returns the base graph.
func (c *Client) EnhanceSimulation(ctx context.Context, domain string, base models.AttackGraph) models.AttackGraph {
	log.Printf("ai: simulation enhancement for %s: steps=%d", domain, len(base.AttackPath))

	if len(base.AttackPath) == 0 {
		return base
	}

	payload, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		log.Printf("ai: marshal base graph failed (%v), returning deterministic graph", err)
		return base
	}
	userPrompt := fmt.Sprintf("Domain: %s\n\nAttack Graph to enhance:\n%s", domain, payload)

	raw, err := c.Complete(ctx, simulationSystemPrompt, userPrompt, 0.3)
	if err != nil {
		log.Printf("ai: enhancement failed (%v), returning deterministic graph", err)
		return base
	}

	enhanced := MergeEnhancement(base, raw)
	if !ValidateGraph(enhanced) {
		log.Printf("ai: enhanced simulation failed validation, returning deterministic graph")
		return base
	}
	return enhanced
}
