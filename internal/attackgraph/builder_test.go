package attackgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asintel/pkg/models"
)

func asset(sub, ip string, score int, ports []int, factors ...string) models.Asset {
	return models.Asset{
		Subdomain:   sub,
		IP:          ip,
		OpenPorts:   ports,
		RiskScore:   score,
		Severity:    models.ClassifySeverity(score),
		RiskFactors: factors,
	}
}

func TestBuildNoCandidates(t *testing.T) {
	b := NewBuilder()
	g := b.Build("example.com", []models.Asset{
		asset("www.example.com", "1.2.3.4", 8, []int{80}, "No notable risk factors identified"),
	})

	assert.Nil(t, g.EntryPoint)
	assert.Empty(t, g.AttackPath)
	assert.Equal(t, "No viable attack path identified based on current exposure.", g.ImpactSummary)
	assert.Equal(t, "Low", g.OverallRisk)
}

func TestBuildFullChain(t *testing.T) {
	b := NewBuilder()
	assets := []models.Asset{
		asset("admin.example.com", "10.0.0.1", 100, []int{22, 3306},
			"Port 22 open (remote access)",
			"Port 3306 open (database)",
			"Administrative surface keyword in hostname (admin)",
			"High-risk service exposed within sensitive environment",
			"Administrative surface combined with service exposure",
		),
		asset("dev.example.com", "10.0.0.2", 55, []int{8080},
			"Port 8080 open (alt web)",
			"Environment keyword in hostname (dev)",
		),
		asset("www.example.com", "10.0.0.3", 8, []int{80}, "No notable risk factors identified"),
	}

	g := b.Build("example.com", assets)

	require.NotNil(t, g.EntryPoint)
	assert.Equal(t, "admin.example.com", *g.EntryPoint)

	// Initial access, two privesc techniques, env pivot, admin exfil.
	require.Len(t, g.AttackPath, 5)
	for i, s := range g.AttackPath {
		assert.Equal(t, i+1, s.Step)
	}

	first := g.AttackPath[0]
	assert.Equal(t, "Initial Access", first.Stage)
	assert.Equal(t, "T1078", first.MitreID)

	assert.Equal(t, "Privilege Escalation", g.AttackPath[1].Stage)
	assert.Equal(t, "T1110.001", g.AttackPath[1].MitreID)
	assert.Equal(t, "Privilege Escalation", g.AttackPath[2].Stage)
	assert.Equal(t, "T1068", g.AttackPath[2].MitreID)
	assert.Contains(t, g.AttackPath[2].Evidence, "Port 3306 directly accessible from external network")

	assert.Equal(t, "Lateral Movement", g.AttackPath[3].Stage)
	assert.Equal(t, "T1199", g.AttackPath[3].MitreID)
	assert.Equal(t, "dev.example.com", g.AttackPath[3].Subdomain)

	last := g.AttackPath[4]
	assert.Equal(t, "Data Exfiltration", last.Stage)
	assert.Equal(t, "T1041", last.MitreID)
	assert.Contains(t, last.Evidence, "Admin + database combination enables direct data exfiltration")

	assert.Equal(t, "Critical", g.OverallRisk)
	assert.Contains(t, g.ImpactSummary, "Peak risk score: 100")
	assert.Contains(t, g.ImpactSummary, "Initial Access, Privilege Escalation, Lateral Movement, Data Exfiltration")
}

func TestBuildPrivescTechniqueDedupe(t *testing.T) {
	b := NewBuilder()
	assets := []models.Asset{
		asset("a.example.com", "10.0.0.1", 60, []int{22}, "Port 22 open (remote access)"),
		asset("b.example.com", "10.0.0.2", 50, []int{22}, "Port 22 open (remote access)"),
	}

	g := b.Build("example.com", assets)

	ssh := 0
	for _, s := range g.AttackPath {
		if s.MitreID == "T1110.001" {
			ssh++
			assert.Equal(t, "a.example.com", s.Subdomain)
		}
	}
	assert.Equal(t, 1, ssh)
}

func TestBuildSharedInfrastructureStep(t *testing.T) {
	b := NewBuilder()
	assets := []models.Asset{
		asset("a.example.com", "10.0.0.1", 45, []int{8080}, "Port 8080 open (alt web)"),
		asset("b.example.com", "10.0.0.1", 5, nil, "No notable risk factors identified"),
		asset("c.example.com", "10.0.0.1", 5, nil, "No notable risk factors identified"),
	}

	g := b.Build("example.com", assets)

	var lateral *models.AttackStep
	for i := range g.AttackPath {
		if g.AttackPath[i].MitreID == "T1021" {
			lateral = &g.AttackPath[i]
		}
	}
	require.NotNil(t, lateral, "shared-infra step expected when 3 assets share one IP")
	assert.Contains(t, lateral.Evidence, "3 subdomains share IP 10.0.0.1 - blast radius amplified")
}

func TestBuildConfidenceCapAndCompoundBoost(t *testing.T) {
	b := NewBuilder()
	a := asset("admin-dev.example.com", "10.0.0.1", 100, []int{22, 3306},
		"High-risk service exposed within sensitive environment",
		"Administrative surface combined with service exposure",
	)

	g := b.Build("example.com", []models.Asset{a})

	require.NotEmpty(t, g.AttackPath)
	for _, s := range g.AttackPath {
		assert.Equal(t, 0.95, s.ConfidenceScore)
	}

	moderate := asset("dev.example.com", "10.0.0.2", 50, []int{8080},
		"High-risk service exposed within sensitive environment",
	)
	g2 := b.Build("example.com", []models.Asset{moderate})
	require.NotEmpty(t, g2.AttackPath)
	assert.Equal(t, 0.55, g2.AttackPath[0].ConfidenceScore)
}

func TestBuildEntryPointFallback(t *testing.T) {
	b := NewBuilder()
	// Candidate above threshold but with no qualifying access vector: no
	// ports, no admin or density signals.
	a := asset("legacy-old.example.com", "", 40, nil, "Environment keyword in hostname (old)")

	g := b.Build("example.com", []models.Asset{a})

	require.NotNil(t, g.EntryPoint)
	assert.Equal(t, "legacy-old.example.com", *g.EntryPoint)
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder()
	assets := []models.Asset{
		asset("admin.example.com", "10.0.0.1", 90, []int{22, 3306}, "Port 22 open (remote access)"),
		asset("dev.example.com", "10.0.0.2", 55, []int{8080}, "Environment keyword in hostname (dev)"),
	}

	g1 := b.Build("example.com", assets)
	g2 := b.Build("example.com", assets)
	assert.Equal(t, g1, g2)
}

func TestBuildEvidenceDoesNotAliasAssetFactors(t *testing.T) {
	b := NewBuilder()
	a := asset("db.example.com", "10.0.0.1", 45, []int{3306}, "Port 3306 open (database)")

	g := b.Build("example.com", []models.Asset{a})
	require.NotEmpty(t, g.AttackPath)
	g.AttackPath[0].Evidence[0] = "mutated"

	assert.Equal(t, "Port 3306 open (database)", a.RiskFactors[0])
}
