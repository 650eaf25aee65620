package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asintel/pkg/models"
)

func TestScoreWebOnlyAsset(t *testing.T) {
	e := NewEngine()
	r := e.Score("www.example.com", []int{80, 443}, 1)

	// Baseline 2 + two web ports 6. No evidence-producing rule fires.
	assert.Equal(t, 8, r.Score)
	assert.Equal(t, models.SeverityInformational, r.Severity)
	assert.Equal(t, []string{"No notable risk factors identified"}, r.Factors)
}

func TestScoreDatabaseBehindWeb(t *testing.T) {
	e := NewEngine()
	r := e.Score("api.example.com", []int{80, 3306}, 1)

	// 2 baseline + 3 web + 35 database; a single non-web port carries no
	// density modifier.
	assert.Equal(t, 40, r.Score)
	assert.Equal(t, models.SeverityMedium, r.Severity)
	assert.Contains(t, r.Factors, "Port 3306 open (database)")
	assert.NotContains(t, r.Factors, "Multiple services exposed (1 open ports)")
	assert.NotContains(t, r.Factors, "Multiple services exposed (2 open ports)")
}

func TestScoreDensityCountsNonWebPortsOnly(t *testing.T) {
	e := NewEngine()

	// Web-only exposure never triggers density.
	web := e.Score("shop.example.com", []int{80, 443}, 1)
	assert.NotContains(t, web.Factors, "Multiple services exposed (2 open ports)")
	assert.Equal(t, 8, web.Score)

	// Four open ports, two of them web: density sees two services.
	mixed := e.Score("api.example.com", []int{80, 443, 22, 3306}, 1)
	assert.Contains(t, mixed.Factors, "Multiple services exposed (2 open ports)")
	// 2 + 6 web + 30 ssh + 35 database + 8 density.
	assert.Equal(t, 81, mixed.Score)
}

func TestScoreCompoundEnvironmentAndAdmin(t *testing.T) {
	e := NewEngine()
	r := e.Score("admin-dev.example.com", []int{22, 3306}, 1)

	// Both the environment keyword (dev) and the distinct admin keyword
	// score, and both compound conditions fire; the raw total exceeds 100.
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, models.SeverityCritical, r.Severity)
	assert.Contains(t, r.Factors, "Environment keyword in hostname (dev)")
	assert.Contains(t, r.Factors, "Administrative surface keyword in hostname (admin)")
	assert.Contains(t, r.Factors, "High-risk service exposed within sensitive environment")
	assert.Contains(t, r.Factors, "Administrative surface combined with service exposure")
}

func TestScoreAdminKeywordDoubleMatchCorrection(t *testing.T) {
	e := NewEngine()
	r := e.Score("admin.example.com", []int{22}, 1)

	// "admin" matches both keyword lists; the admin category contributes
	// only +5 on top of the environment +20.
	// 2 + 30 (ssh) + 20 (env) + 5 (admin overlap) + 25 + 20 (compounds).
	assert.Equal(t, 100, r.Score)
	assert.Contains(t, r.Factors, "Administrative surface keyword in hostname (admin)")
}

func TestScoreSharedInfrastructure(t *testing.T) {
	e := NewEngine()
	base := e.Score("cdn1.example.com", []int{443}, 2)
	shared := e.Score("cdn1.example.com", []int{443}, 3)

	assert.Equal(t, base.Score+8, shared.Score)
	assert.Contains(t, shared.Factors, "IP shared by 3 discovered assets")
}

func TestScoreDuplicatePortsCountOnce(t *testing.T) {
	e := NewEngine()
	once := e.Score("db.example.com", []int{3306}, 1)
	dup := e.Score("db.example.com", []int{3306, 3306, 3306}, 1)

	assert.Equal(t, once.Score, dup.Score)
	assert.Equal(t, once.Factors, dup.Factors)
}

func TestScoreHighDensity(t *testing.T) {
	e := NewEngine()
	r := e.Score("box.example.com", []int{21, 22, 25, 8080}, 1)

	assert.Contains(t, r.Factors, "High service density (4 open ports)")
	// 2 + 25 + 30 + 15 + 10 + 15 density.
	assert.Equal(t, 97, r.Score)
}

func TestScoreIsPure(t *testing.T) {
	e := NewEngine()
	ports := []int{3306, 80}
	first := e.Score("api.example.com", ports, 1)
	second := e.Score("api.example.com", ports, 1)

	assert.Equal(t, first, second)
	assert.Equal(t, []int{3306, 80}, ports)
}

func TestApplyGlobalAdjustment(t *testing.T) {
	e := NewEngine()
	assets := make([]models.Asset, 0, 10)
	for i := 0; i < 6; i++ {
		r := e.Score("www.example.com", []int{80}, 1)
		assets = append(assets, models.Asset{
			Subdomain: "www.example.com", OpenPorts: []int{80},
			RiskScore: r.Score, Severity: r.Severity, RiskFactors: r.Factors,
		})
	}
	for i := 0; i < 4; i++ {
		r := e.Score("idle.example.com", nil, 1)
		assets = append(assets, models.Asset{
			Subdomain: "idle.example.com",
			RiskScore: r.Score, Severity: r.Severity, RiskFactors: r.Factors,
		})
	}

	adjusted := e.ApplyGlobalAdjustment(assets)

	for _, a := range adjusted {
		assert.Contains(t, a.RiskFactors, "Broad public service exposure footprint")
		assert.NotContains(t, a.RiskFactors, "No notable risk factors identified")
	}
	// 2 baseline + 3 web + 5 footprint.
	assert.Equal(t, 10, adjusted[0].RiskScore)
	assert.Equal(t, models.SeverityLow, adjusted[0].Severity)
	// Portless assets gain the modifier too.
	assert.Equal(t, 5, adjusted[6].RiskScore)
}

func TestApplyGlobalAdjustmentSkipsSmallOrQuietSets(t *testing.T) {
	e := NewEngine()

	small := []models.Asset{{OpenPorts: []int{80}, RiskScore: 5, RiskFactors: []string{"x"}}}
	assert.Equal(t, 5, e.ApplyGlobalAdjustment(small)[0].RiskScore)

	quiet := make([]models.Asset, 10)
	for i := range quiet {
		quiet[i] = models.Asset{RiskScore: 0, Severity: models.SeverityInformational, RiskFactors: []string{"No notable risk factors identified"}}
	}
	quiet[0].OpenPorts = []int{80}
	out := e.ApplyGlobalAdjustment(quiet)
	assert.Equal(t, 0, out[1].RiskScore)
}
