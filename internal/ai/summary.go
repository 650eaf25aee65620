package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode"

	"github.com/asintel/pkg/models"
)

// Summary is the executive summary returned to API callers.
type Summary struct {
	Summary         string   `json:"summary"`
	TopRisks        []string `json:"top_risks"`
	Recommendations []string `json:"recommendations"`
}

// summaryStats is the aggregate block of the preprocessed payload.
type summaryStats struct {
	TotalAssets          int `json:"total_assets"`
	Critical             int `json:"critical"`
	High                 int `json:"high"`
	Medium               int `json:"medium"`
	Low                  int `json:"low"`
	Informational        int `json:"informational"`
	SignificantRiskCount int `json:"significant_risk_count"`
}

// topRiskAsset is the per-asset digest sent to the LLM in place of raw
// scan output.
type topRiskAsset struct {
	Subdomain   string          `json:"subdomain"`
	IP          string          `json:"ip"`
	RiskScore   int             `json:"risk_score"`
	Severity    models.Severity `json:"severity"`
	OpenPorts   []int           `json:"open_ports"`
	RiskFactors []string        `json:"risk_factors"`
}

type summaryInput struct {
	Domain        string         `json:"domain"`
	OverallStats  summaryStats   `json:"overall_stats"`
	TopRiskAssets []topRiskAsset `json:"top_risk_assets"`
}

const significantRiskThreshold = 30

const summarySystemPrompt = `You are a senior cybersecurity analyst providing an objective attack surface assessment.

STRICT RULES:
- Do NOT exaggerate risks. Be accurate and measured.
- Ports 80 and 443 alone are standard web services and are NOT high risk.
- Only treat assets with risk_score >= 30 as significant security concerns.
- If no assets have risk_score >= 30, clearly state the organization has a strong security posture.
- Do NOT hallucinate or fabricate CVE numbers under any circumstances.
- Do NOT invent vulnerabilities not supported by the data.
- Reference the actual risk_factors provided for each asset.
- Keep the executive summary under 200 words.
- Provide specific, prioritized, actionable recommendations.

RESPONSE FORMAT (use this exact structure):

EXECUTIVE_SUMMARY:
<concise analytical overview>

TOP_RISKS:
- <risk 1 based on actual findings>
- <risk 2 based on actual findings>
- <risk 3 based on actual findings>

RECOMMENDATIONS:
1. <highest priority action>
2. <second priority action>
3. <third priority action>`

// PreprocessScanData condenses the asset vector into the digest handed to
// the LLM: severity histogram, significant-risk count and the three
// highest-scoring assets with their evidence.
func PreprocessScanData(domain string, assets []models.Asset) summaryInput {
	var stats summaryStats
	stats.TotalAssets = len(assets)
	for _, a := range assets {
		switch a.Severity {
		case models.SeverityCritical:
			stats.Critical++
		case models.SeverityHigh:
			stats.High++
		case models.SeverityMedium:
			stats.Medium++
		case models.SeverityLow:
			stats.Low++
		case models.SeverityInformational:
			stats.Informational++
		}
		if a.RiskScore >= significantRiskThreshold {
			stats.SignificantRiskCount++
		}
	}

	sorted := make([]models.Asset, len(assets))
	copy(sorted, assets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RiskScore > sorted[j].RiskScore
	})
	if len(sorted) > 3 {
		sorted = sorted[:3]
	}

	top := make([]topRiskAsset, 0, len(sorted))
	for _, a := range sorted {
		top = append(top, topRiskAsset{
			Subdomain:   a.Subdomain,
			IP:          a.IP,
			RiskScore:   a.RiskScore,
			Severity:    a.Severity,
			OpenPorts:   a.OpenPorts,
			RiskFactors: a.RiskFactors,
		})
	}

	return summaryInput{Domain: domain, OverallStats: stats, TopRiskAssets: top}
}

// GenerateSummary asks Groq for an executive summary of the scan. The error
// return lets the caller decide between failing and degrading.
func (c *Client) GenerateSummary(ctx context.Context, domain string, assets []models.Asset) (Summary, error) {
	input := PreprocessScanData(domain, assets)
	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return Summary{}, fmt.Errorf("marshal summary input: %w", err)
	}

	userPrompt := fmt.Sprintf("Analyze the following structured attack surface data:\n\n%s", payload)
	raw, err := c.Complete(ctx, summarySystemPrompt, userPrompt, 0.25)
	if err != nil {
		return Summary{}, err
	}
	return ParseSummaryResponse(raw), nil
}

// FallbackSummary builds a deterministic summary from the preprocessed
// digest when no LLM output is available.
func FallbackSummary(domain string, assets []models.Asset) Summary {
	input := PreprocessScanData(domain, assets)
	stats := input.OverallStats

	var text string
	if stats.SignificantRiskCount == 0 {
		text = fmt.Sprintf(
			"The scan of %s discovered %d asset(s), none of which reached a significant risk level. The organization presents a strong external security posture.",
			domain, stats.TotalAssets)
	} else {
		text = fmt.Sprintf(
			"The scan of %s discovered %d asset(s), %d of which carry significant risk (%d critical, %d high severity). Remediation should focus on the highest-scoring assets listed below.",
			domain, stats.TotalAssets, stats.SignificantRiskCount, stats.Critical, stats.High)
	}

	var risks []string
	for _, a := range input.TopRiskAssets {
		if a.RiskScore < significantRiskThreshold {
			continue
		}
		factor := "elevated exposure"
		if len(a.RiskFactors) > 0 {
			factor = a.RiskFactors[0]
		}
		risks = append(risks, fmt.Sprintf("%s (score %d): %s", a.Subdomain, a.RiskScore, factor))
	}
	if len(risks) == 0 {
		risks = []string{"No significant risks identified"}
	}

	recs := []string{"Re-scan periodically to detect attack surface drift"}
	if stats.SignificantRiskCount > 0 {
		recs = []string{
			"Restrict exposed non-web services behind VPN or allowlists",
			"Review hostname conventions that reveal environment or administrative roles",
			"Re-scan after remediation to confirm exposure reduction",
		}
	}

	return Summary{Summary: text, TopRisks: risks, Recommendations: recs}
}

// ParseSummaryResponse extracts a summary from raw LLM output, trying JSON
// first and then the header-delimited text format.
func ParseSummaryResponse(raw string) Summary {
	var parsed Summary
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &parsed); err == nil {
		if strings.TrimSpace(parsed.Summary) != "" {
			if parsed.TopRisks == nil {
				parsed.TopRisks = []string{}
			}
			if parsed.Recommendations == nil {
				parsed.Recommendations = []string{}
			}
			return parsed
		}
	}

	result := Summary{TopRisks: []string{}, Recommendations: []string{}}
	section := ""
	for _, line := range strings.Split(raw, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		upper := strings.ToUpper(stripped)
		switch {
		case strings.HasPrefix(upper, "EXECUTIVE_SUMMARY:") || strings.HasPrefix(upper, "EXECUTIVE SUMMARY:"):
			section = "summary"
			if idx := strings.Index(stripped, ":"); idx != -1 {
				if content := strings.TrimSpace(stripped[idx+1:]); content != "" {
					result.Summary = content
				}
			}
			continue
		case strings.HasPrefix(upper, "TOP_RISKS:") || strings.HasPrefix(upper, "TOP RISKS:"):
			section = "risks"
			continue
		case strings.HasPrefix(upper, "RECOMMENDATIONS:"):
			section = "recommendations"
			continue
		case strings.HasSuffix(stripped, ":") && stripped == upper && section != "":
			// An unknown all-caps header ends the current section.
			section = ""
			continue
		}

		switch section {
		case "summary":
			if result.Summary == "" {
				result.Summary = stripped
			} else {
				result.Summary += " " + stripped
			}
		case "risks":
			if strings.HasPrefix(stripped, "- ") || strings.HasPrefix(stripped, "* ") {
				result.TopRisks = append(result.TopRisks, strings.TrimSpace(stripped[2:]))
			}
		case "recommendations":
			text := stripped
			if len(stripped) >= 3 && unicode.IsDigit(rune(stripped[0])) {
				for _, sep := range []string{". ", ") ", ": "} {
					idx := strings.Index(stripped, sep)
					if idx != -1 && idx <= 3 {
						text = strings.TrimSpace(stripped[idx+len(sep):])
						break
					}
				}
			}
			if text != "" {
				result.Recommendations = append(result.Recommendations, text)
			}
		}
	}

	if result.Summary == "" {
		result.Summary = raw
		log.Printf("ai: summary headers not found, returning raw text")
	}
	return result
}
