package recon

import (
	"context"
	"log"
	"sync"

	"github.com/asintel/internal/risk"
	"github.com/asintel/pkg/models"
)

// SubdomainEnumerator yields validated candidate hostnames for a domain.
type SubdomainEnumerator interface {
	Enumerate(ctx context.Context, domain string) ([]string, error)
}

// HostResolver is the resolution surface the orchestrator needs.
type HostResolver interface {
	ResolvePrimaryIP(ctx context.Context, host string) (string, bool)
	LookupRecords(ctx context.Context, domain string) models.DNSRecords
	Clear()
}

// ExposureSource yields exposure intelligence per IP.
type ExposureSource interface {
	Host(ctx context.Context, ip string) HostExposure
	Clear()
}

// Orchestrator runs the full recon pipeline: enumerate, resolve, enrich,
// score, adjust. Per-asset soft failures never abort a run.
type Orchestrator struct {
	enumerator SubdomainEnumerator
	resolver   HostResolver
	exposure   ExposureSource
	risk       *risk.Engine
	workers    int
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(e SubdomainEnumerator, r HostResolver, x ExposureSource, engine *risk.Engine) *Orchestrator {
	return &Orchestrator{
		enumerator: e,
		resolver:   r,
		exposure:   x,
		risk:       engine,
		workers:    defaultWorkers,
	}
}

type resolvedHost struct {
	subdomain string
	ip        string
}

// Run executes a scan for domain and returns the scored asset vector.
func (o *Orchestrator) Run(ctx context.Context, domain string) ([]models.Asset, error) {
	o.resolver.Clear()
	o.exposure.Clear()

	subdomains, err := o.enumerator.Enumerate(ctx, domain)
	if err != nil {
		return nil, err
	}

	// Resolve with a bounded pool, keeping enumeration order.
	type slot struct {
		host resolvedHost
		ok   bool
	}
	slots := make([]slot, len(subdomains))
	seen := make(map[string]bool, len(subdomains))
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.workerCount())
	for i, sub := range subdomains {
		if seen[sub] {
			continue
		}
		seen[sub] = true
		wg.Add(1)
		go func(i int, sub string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ip, ok := o.resolver.ResolvePrimaryIP(ctx, sub); ok {
				slots[i] = slot{host: resolvedHost{subdomain: sub, ip: ip}, ok: true}
			}
		}(i, sub)
	}
	wg.Wait()

	resolved := make([]resolvedHost, 0, len(slots))
	for _, s := range slots {
		if s.ok {
			resolved = append(resolved, s.host)
		}
	}

	ipFreq := make(map[string]int, len(resolved))
	for _, h := range resolved {
		ipFreq[h.ip]++
	}

	// Enrichment runs in parallel; the exposure cache deduplicates work
	// for shared IPs behind its own lock.
	exposures := make([]HostExposure, len(resolved))
	for i, h := range resolved {
		wg.Add(1)
		go func(i int, ip string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			exposures[i] = o.exposure.Host(ctx, ip)
		}(i, h.ip)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assets := make([]models.Asset, 0, len(resolved))
	for i, h := range resolved {
		exp := exposures[i]
		result := o.risk.Score(h.subdomain, exp.Ports, ipFreq[h.ip])

		asset := models.Asset{
			Subdomain:   h.subdomain,
			IP:          h.ip,
			OpenPorts:   exp.Ports,
			RiskScore:   result.Score,
			Severity:    result.Severity,
			RiskFactors: result.Factors,
		}
		if asset.OpenPorts == nil {
			asset.OpenPorts = []int{}
		}
		if len(exp.Services) > 0 {
			asset.Services = exp.Services
		}
		asset.OS = exp.OS
		asset.Org = exp.Org
		asset.ISP = exp.ISP

		assets = append(assets, asset)
	}

	assets = o.risk.ApplyGlobalAdjustment(assets)

	log.Printf("recon: scan of %s produced %d assets", domain, len(assets))
	return assets, nil
}

// ApexRecords looks up the optional MX/TXT/CNAME records for the apex
// domain. A nil return means nothing was found.
func (o *Orchestrator) ApexRecords(ctx context.Context, domain string) *models.DNSRecords {
	records := o.resolver.LookupRecords(ctx, domain)
	if records.Empty() {
		return nil
	}
	return &records
}

func (o *Orchestrator) workerCount() int {
	if o.workers > 0 {
		return o.workers
	}
	return defaultWorkers
}
