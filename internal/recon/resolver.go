package recon

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/asintel/pkg/models"
)

const dnsTimeout = 5 * time.Second

// AddressSet holds all addresses a hostname resolved to, split by family.
type AddressSet struct {
	IPv4 []string
	IPv6 []string
}

// Resolver performs DNS lookups with a per-run cache. One resolver serves
// one scan; Clear resets it between runs.
type Resolver struct {
	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)

	mu    sync.RWMutex
	cache map[string]AddressSet
}

// NewResolver returns a resolver backed by the system DNS configuration.
func NewResolver() *Resolver {
	r := &net.Resolver{}
	return &Resolver{
		lookup: func(ctx context.Context, host string) ([]net.IPAddr, error) {
			return r.LookupIPAddr(ctx, host)
		},
		cache: make(map[string]AddressSet),
	}
}

// ResolveFull resolves host to every available address. Failures cache an
// empty set so repeat lookups within a run stay cheap.
func (r *Resolver) ResolveFull(ctx context.Context, host string) AddressSet {
	r.mu.RLock()
	cached, ok := r.cache[host]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	var result AddressSet
	addrs, err := r.lookup(ctx, host)
	if err == nil {
		seen := make(map[string]bool, len(addrs))
		for _, addr := range addrs {
			ip := addr.IP.String()
			if seen[ip] {
				continue
			}
			seen[ip] = true
			if addr.IP.To4() != nil {
				result.IPv4 = append(result.IPv4, ip)
			} else {
				result.IPv6 = append(result.IPv6, ip)
			}
		}
	}

	r.mu.Lock()
	r.cache[host] = result
	r.mu.Unlock()
	return result
}

// ResolvePrimaryIP returns the first IPv4 address for host.
func (r *Resolver) ResolvePrimaryIP(ctx context.Context, host string) (string, bool) {
	set := r.ResolveFull(ctx, host)
	if len(set.IPv4) == 0 {
		return "", false
	}
	return set.IPv4[0], true
}

// Resolves reports whether host has any address at all.
func (r *Resolver) Resolves(ctx context.Context, host string) bool {
	set := r.ResolveFull(ctx, host)
	return len(set.IPv4) > 0 || len(set.IPv6) > 0
}

// Clear flushes the cache for a fresh run.
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.cache = make(map[string]AddressSet)
	r.mu.Unlock()
}

// LookupRecords queries MX, TXT and CNAME records for the apex domain.
// Every lookup is best-effort; failures leave the corresponding list empty.
func (r *Resolver) LookupRecords(ctx context.Context, domain string) models.DNSRecords {
	var records models.DNSRecords
	res := &net.Resolver{}

	{
		ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
		if mxs, err := res.LookupMX(ctx, domain); err == nil {
			for _, mx := range mxs {
				records.MX = append(records.MX, strings.TrimSuffix(mx.Host, "."))
			}
		}
		cancel()
	}
	{
		ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
		if txts, err := res.LookupTXT(ctx, domain); err == nil {
			records.TXT = append(records.TXT, txts...)
		}
		cancel()
	}
	{
		ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
		if cname, err := res.LookupCNAME(ctx, domain); err == nil {
			cname = strings.TrimSuffix(cname, ".")
			if cname != "" && cname != domain {
				records.CNAME = append(records.CNAME, cname)
			}
		}
		cancel()
	}
	return records
}
