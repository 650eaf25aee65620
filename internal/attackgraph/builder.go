package attackgraph

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/asintel/pkg/models"
)

// technique pairs a MITRE ATT&CK technique name with its identifier.
type technique struct {
	name    string
	mitreID string
}

var mitreTechniques = map[string]technique{
	"initial_access_web":    {"Exploit Public-Facing Application", "T1190"},
	"initial_access_remote": {"External Remote Services", "T1133"},
	"initial_access_admin":  {"Valid Accounts - Admin Panel Exposure", "T1078"},

	"privesc_db_mysql":    {"Exploitation of Database Service (MySQL)", "T1068"},
	"privesc_db_mongo":    {"Exploitation of Database Service (MongoDB)", "T1068"},
	"privesc_db_postgres": {"Exploitation of Database Service (PostgreSQL)", "T1068"},
	"privesc_redis":       {"Exploitation of In-Memory Data Store (Redis)", "T1068"},
	"privesc_ssh":         {"Brute Force - SSH Credential Access", "T1110.001"},
	"privesc_rdp":         {"Remote Desktop Protocol Exploitation", "T1021.001"},
	"privesc_ftp":         {"Exploitation via FTP Service", "T1071.002"},

	"lateral_shared_infra": {"Lateral Movement via Shared Infrastructure", "T1021"},
	"lateral_admin":        {"Internal Administrative Interface Discovery", "T1087.002"},
	"lateral_env":          {"Exploitation of Non-Production Environment", "T1199"},

	"exfil_db":       {"Data from Information Repositories", "T1213"},
	"exfil_admin_db": {"Exfiltration via Administrative Channel", "T1041"},
}

var publicWebPorts = map[int]bool{80: true, 443: true}
var databasePorts = map[int]bool{3306: true, 5432: true, 27017: true, 6379: true}

// sensitivePortTechniques maps exposed ports to privilege-escalation
// technique keys. Each key corresponds to exactly one port.
var sensitivePortTechniques = map[int]string{
	22:    "privesc_ssh",
	3389:  "privesc_rdp",
	3306:  "privesc_db_mysql",
	27017: "privesc_db_mongo",
	5432:  "privesc_db_postgres",
	6379:  "privesc_redis",
	21:    "privesc_ftp",
}

var adminKeywords = []string{"admin", "portal", "dashboard", "manage", "panel", "console"}
var envKeywords = []string{"dev", "staging", "test", "old", "beta", "internal", "backup", "uat", "demo"}

// compoundFactorKeywords identify evidence lines produced by compound risk
// conditions; each one raises step confidence by 0.05.
var compoundFactorKeywords = []string{
	"high-risk service exposed within",
	"administrative surface combined",
	"broad public service exposure",
}

// DefaultRiskThreshold is the minimum risk score an asset needs to enter
// the candidate pool.
const DefaultRiskThreshold = 30

// Builder constructs deterministic staged attack chains from scored assets.
type Builder struct {
	threshold int
}

// NewBuilder returns a builder using the default candidate threshold.
func NewBuilder() *Builder {
	return &Builder{threshold: DefaultRiskThreshold}
}

// Build assembles the four-stage attack graph for one scan. The output is a
// pure function of the asset vector; no external calls are made.
func (b *Builder) Build(domain string, assets []models.Asset) models.AttackGraph {
	candidates := make([]models.Asset, 0, len(assets))
	for _, a := range assets {
		if a.RiskScore >= b.threshold {
			candidates = append(candidates, a)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RiskScore > candidates[j].RiskScore
	})

	if len(candidates) == 0 {
		log.Printf("attackgraph: no significant-risk assets for %s", domain)
		return models.AttackGraph{
			EntryPoint:    nil,
			AttackPath:    []models.AttackStep{},
			ImpactSummary: "No viable attack path identified based on current exposure.",
			OverallRisk:   "Low",
		}
	}

	// Shared-infrastructure frequency is computed over the full asset set,
	// not only the candidates.
	ipFreq := make(map[string]int)
	for _, a := range assets {
		if a.IP != "" {
			ipFreq[a.IP]++
		}
	}

	var path []models.AttackStep
	stepNum := 0
	var entryPoint string
	used := make(map[string]bool)

	// Stage 1: initial access. The highest-risk asset with any qualifying
	// vector becomes the entry point.
	for _, a := range candidates {
		isWeb := hasWebPort(a.OpenPorts)
		isAdmin := isAdminSurface(a.Subdomain)
		hasSensitive := hasNonWebPort(a.OpenPorts)
		hasDensity := len(a.OpenPorts) >= 4

		if !isWeb && !hasSensitive && !isAdmin && !hasDensity {
			continue
		}

		var techKey string
		switch {
		case isAdmin && hasSensitive:
			techKey = "initial_access_admin"
		case hasSensitive && !isWeb:
			techKey = "initial_access_remote"
		default:
			techKey = "initial_access_web"
		}

		var extra []string
		if hasDensity {
			extra = append(extra, fmt.Sprintf("High service density (%d ports exposed)", len(a.OpenPorts)))
		}

		stepNum++
		path = append(path, makeStep(stepNum, "Initial Access", techKey, a, extra))
		entryPoint = a.Subdomain
		used[a.Subdomain] = true
		break
	}

	// Stage 2: privilege escalation, one step per distinct technique.
	seenTechniques := make(map[string]bool)
	for _, a := range candidates {
		for _, p := range a.OpenPorts {
			key, ok := sensitivePortTechniques[p]
			if !ok || seenTechniques[key] {
				continue
			}
			seenTechniques[key] = true

			extra := []string{fmt.Sprintf("Port %d directly accessible from external network", p)}
			stepNum++
			path = append(path, makeStep(stepNum, "Privilege Escalation", key, a, extra))
			used[a.Subdomain] = true
		}
	}

	// Stage 3a: shared infrastructure. One step is sufficient.
	for _, a := range candidates {
		if a.IP == "" {
			continue
		}
		if freq := ipFreq[a.IP]; freq > 2 {
			extra := []string{fmt.Sprintf("%d subdomains share IP %s - blast radius amplified", freq, a.IP)}
			stepNum++
			path = append(path, makeStep(stepNum, "Lateral Movement", "lateral_shared_infra", a, extra))
			used[a.Subdomain] = true
			break
		}
	}

	// Stage 3b: pivot to an admin surface not already in the chain.
	for _, a := range candidates {
		if used[a.Subdomain] || !isAdminSurface(a.Subdomain) {
			continue
		}
		stepNum++
		path = append(path, makeStep(stepNum, "Lateral Movement", "lateral_admin", a, nil))
		used[a.Subdomain] = true
		break
	}

	// Stage 3c: pivot to an unused non-production environment.
	for _, a := range candidates {
		if used[a.Subdomain] || isAdminSurface(a.Subdomain) || !isEnvSurface(a.Subdomain) {
			continue
		}
		stepNum++
		path = append(path, makeStep(stepNum, "Lateral Movement", "lateral_env", a, nil))
		used[a.Subdomain] = true
		break
	}

	// Stage 4: data exfiltration on the first candidate exposing a
	// database port. Admin context upgrades the channel.
	for _, a := range candidates {
		dbPorts := databasePortsOn(a.OpenPorts)
		if len(dbPorts) == 0 {
			continue
		}

		var techKey string
		var extra []string
		if isAdminSurface(a.Subdomain) && hasNonWebPort(a.OpenPorts) {
			techKey = "exfil_admin_db"
			extra = []string{
				fmt.Sprintf("Database port(s) %v exposed alongside admin interface", dbPorts),
				"Admin + database combination enables direct data exfiltration",
			}
		} else {
			techKey = "exfil_db"
			extra = []string{fmt.Sprintf("Database port(s) %v externally accessible", dbPorts)}
		}

		stepNum++
		path = append(path, makeStep(stepNum, "Data Exfiltration", techKey, a, extra))
		break
	}

	if entryPoint == "" {
		entryPoint = candidates[0].Subdomain
	}

	overall := classifyOverallRisk(path)
	stages := stagesHit(path)
	stageList := "no"
	if len(stages) > 0 {
		stageList = strings.Join(stages, ", ")
	}
	impact := fmt.Sprintf(
		"Analysis of %s identified %d asset(s) with elevated risk (score >= %d). Peak risk score: %d. A %d-step attack chain spanning %s stage(s) was constructed.",
		domain, len(candidates), b.threshold, candidates[0].RiskScore, len(path), stageList,
	)

	log.Printf("attackgraph: built graph for %s: %d steps, risk=%s", domain, len(path), overall)

	if path == nil {
		path = []models.AttackStep{}
	}
	return models.AttackGraph{
		EntryPoint:    &entryPoint,
		AttackPath:    path,
		ImpactSummary: impact,
		OverallRisk:   overall,
	}
}

func makeStep(num int, stage, techKey string, a models.Asset, extra []string) models.AttackStep {
	tech := mitreTechniques[techKey]
	evidence := make([]string, 0, len(a.RiskFactors)+len(extra))
	evidence = append(evidence, a.RiskFactors...)
	evidence = append(evidence, extra...)

	return models.AttackStep{
		Step:            num,
		Stage:           stage,
		Subdomain:       a.Subdomain,
		IP:              a.IP,
		Technique:       tech.name,
		MitreID:         tech.mitreID,
		Evidence:        evidence,
		ConfidenceScore: computeConfidence(a),
	}
}

// computeConfidence maps the asset score to [0, 0.95], boosted 0.05 per
// compound risk factor.
func computeConfidence(a models.Asset) float64 {
	base := float64(a.RiskScore) / 100.0
	compound := 0
	for _, f := range a.RiskFactors {
		lower := strings.ToLower(f)
		for _, kw := range compoundFactorKeywords {
			if strings.Contains(lower, kw) {
				compound++
				break
			}
		}
	}
	conf := base + float64(compound)*0.05
	if conf > 0.95 {
		conf = 0.95
	}
	return round2(conf)
}

func classifyOverallRisk(path []models.AttackStep) string {
	if len(path) == 0 {
		return "Low"
	}
	maxConf := 0.0
	for _, s := range path {
		if s.ConfidenceScore > maxConf {
			maxConf = s.ConfidenceScore
		}
	}
	switch {
	case maxConf >= 0.85 || len(path) >= 5:
		return "Critical"
	case maxConf >= 0.7 || len(path) >= 3:
		return "High"
	case maxConf >= 0.5 || len(path) >= 2:
		return "Medium"
	default:
		return "Low"
	}
}

func stagesHit(path []models.AttackStep) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range path {
		if !seen[s.Stage] {
			seen[s.Stage] = true
			out = append(out, s.Stage)
		}
	}
	return out
}

func hasWebPort(ports []int) bool {
	for _, p := range ports {
		if publicWebPorts[p] {
			return true
		}
	}
	return false
}

func hasNonWebPort(ports []int) bool {
	for _, p := range ports {
		if !publicWebPorts[p] {
			return true
		}
	}
	return false
}

func databasePortsOn(ports []int) []int {
	var out []int
	for _, p := range ports {
		if databasePorts[p] {
			out = append(out, p)
		}
	}
	return out
}

func isAdminSurface(subdomain string) bool {
	lower := strings.ToLower(subdomain)
	for _, kw := range adminKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isEnvSurface(subdomain string) bool {
	lower := strings.ToLower(subdomain)
	for _, kw := range envKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
