package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/asintel/pkg/models"
)

// sensitiveService describes the scoring weight and label of a port that
// carries elevated exposure risk when reachable from the internet.
type sensitiveService struct {
	weight int
	label  string
}

var sensitivePorts = map[int]sensitiveService{
	3389:  {35, "remote desktop"},
	3306:  {35, "database"},
	27017: {35, "database"},
	22:    {30, "remote access"},
	5432:  {30, "database"},
	6379:  {30, "in-memory store"},
	21:    {25, "file transfer"},
	25:    {15, "mail"},
	8080:  {10, "alt web"},
	8443:  {8, "alt secure web"},
}

// highRiskWeightThreshold marks the weight at or above which an exposed
// service counts as high-risk for compound scoring.
const highRiskWeightThreshold = 25

// envKeywords are checked in order; only the first match scores.
var envKeywords = []string{"dev", "staging", "test", "old", "beta", "internal", "admin", "backup", "uat", "demo"}

// adminKeywords mark administrative surfaces; any number may appear in a
// hostname but the category scores at most once.
var adminKeywords = []string{"admin", "portal", "dashboard", "manage"}

// sentinelFactor is recorded when no scoring rule produced evidence.
const sentinelFactor = "No notable risk factors identified"

// footprintFactor is appended set-wide when the global adjustment fires.
const footprintFactor = "Broad public service exposure footprint"

// Result is the outcome of scoring a single asset.
type Result struct {
	Score    int
	Severity models.Severity
	Factors  []string
}

// Engine computes deterministic per-asset risk scores from hostname
// semantics, open-port exposure and infrastructure concentration.
type Engine struct{}

// NewEngine returns a risk engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score evaluates one asset. ipFrequency is the number of scanned assets
// sharing the asset's IP, computed over the whole run.
func (e *Engine) Score(subdomain string, openPorts []int, ipFrequency int) Result {
	host := strings.ToLower(subdomain)
	ports := dedupeSortedPorts(openPorts)

	score := 0
	var factors []string

	// Layer 1: service exposure.
	if len(ports) > 0 {
		score += 2
	}

	webBonus := 0
	highRiskExposed := false
	for _, p := range ports {
		if p == 80 || p == 443 {
			if webBonus < 6 {
				webBonus += 3
			}
			continue
		}
		if svc, ok := sensitivePorts[p]; ok {
			score += svc.weight
			factors = append(factors, fmt.Sprintf("Port %d open (%s)", p, svc.label))
			if svc.weight >= highRiskWeightThreshold {
				highRiskExposed = true
			}
		}
	}
	score += webBonus

	// Layer 1: service density. Web ports 80/443 already scored above and
	// do not count toward density.
	nonWeb := countNonWebPorts(ports)
	if nonWeb >= 4 {
		score += 15
		factors = append(factors, fmt.Sprintf("High service density (%d open ports)", nonWeb))
	} else if nonWeb >= 2 {
		score += 8
		factors = append(factors, fmt.Sprintf("Multiple services exposed (%d open ports)", nonWeb))
	}

	// Layer 2: hostname semantics.
	matchedEnv := ""
	for _, kw := range envKeywords {
		if strings.Contains(host, kw) {
			matchedEnv = kw
			score += 20
			factors = append(factors, fmt.Sprintf("Environment keyword in hostname (%s)", kw))
			break
		}
	}

	matchedAdmin := ""
	for _, kw := range adminKeywords {
		if strings.Contains(host, kw) {
			matchedAdmin = kw
			break
		}
	}
	if matchedAdmin != "" {
		if matchedAdmin == matchedEnv {
			// Same token already scored as an environment keyword.
			score += 5
		} else {
			score += 25
		}
		factors = append(factors, fmt.Sprintf("Administrative surface keyword in hostname (%s)", matchedAdmin))
	}

	// Layer 2: infrastructure concentration.
	if ipFrequency > 2 {
		score += 8
		factors = append(factors, fmt.Sprintf("IP shared by %d discovered assets", ipFrequency))
	}

	// Layer 3: compound conditions.
	if matchedEnv != "" && highRiskExposed {
		score += 25
		factors = append(factors, "High-risk service exposed within sensitive environment")
	}
	if matchedAdmin != "" && hasNonWebPort(ports) {
		score += 20
		factors = append(factors, "Administrative surface combined with service exposure")
	}

	score = clamp(score)
	if len(factors) == 0 {
		factors = []string{sentinelFactor}
	}

	return Result{
		Score:    score,
		Severity: models.ClassifySeverity(score),
		Factors:  factors,
	}
}

// ApplyGlobalAdjustment applies the set-wide footprint modifier: when a run
// discovered more than 8 assets and over half of them expose at least one
// port, every asset gains +5 and its severity is re-derived.
func (e *Engine) ApplyGlobalAdjustment(assets []models.Asset) []models.Asset {
	total := len(assets)
	if total <= 8 {
		return assets
	}
	withPorts := 0
	for _, a := range assets {
		if len(a.OpenPorts) > 0 {
			withPorts++
		}
	}
	if withPorts*2 <= total {
		return assets
	}

	for i := range assets {
		assets[i].RiskScore = clamp(assets[i].RiskScore + 5)
		assets[i].Severity = models.ClassifySeverity(assets[i].RiskScore)
		if len(assets[i].RiskFactors) == 1 && assets[i].RiskFactors[0] == sentinelFactor {
			assets[i].RiskFactors = []string{footprintFactor}
		} else {
			assets[i].RiskFactors = append(assets[i].RiskFactors, footprintFactor)
		}
	}
	return assets
}

func hasNonWebPort(ports []int) bool {
	return countNonWebPorts(ports) > 0
}

func countNonWebPorts(ports []int) int {
	n := 0
	for _, p := range ports {
		if p != 80 && p != 443 {
			n++
		}
	}
	return n
}

func dedupeSortedPorts(ports []int) []int {
	if len(ports) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
