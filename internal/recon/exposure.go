package recon

import (
	"context"
	"log"
	"sync"

	"github.com/ns3777k/go-shodan/v4/shodan"

	"github.com/asintel/pkg/models"
)

// HostExposure is the projection of an exposure lookup: what the rest of
// the pipeline needs and nothing else.
type HostExposure struct {
	Ports    []int
	Services []models.Service
	OS       string
	Org      string
	ISP      string
}

// ShodanClient wraps the Shodan API with a per-run result cache. Lookup
// failures of any kind are cached as empty so one IP is queried at most
// once per scan.
type ShodanClient struct {
	client *shodan.Client

	mu    sync.RWMutex
	cache map[string]HostExposure
}

// NewShodanClient returns an exposure client. An empty key yields a client
// that reports empty exposure for every host.
func NewShodanClient(apiKey string) *ShodanClient {
	c := &ShodanClient{cache: make(map[string]HostExposure)}
	if apiKey != "" {
		c.client = shodan.NewClient(nil, apiKey)
	}
	return c
}

// Host queries exposure intelligence for ip.
func (c *ShodanClient) Host(ctx context.Context, ip string) HostExposure {
	if c.client == nil {
		return HostExposure{}
	}

	c.mu.RLock()
	cached, ok := c.cache[ip]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	var result HostExposure
	host, err := c.client.GetServicesForHost(ctx, ip, nil)
	if err != nil {
		// Not-found, rate-limit and transport errors all land here; the
		// empty result is cached either way.
		log.Printf("recon: shodan lookup failed for %s: %v", ip, err)
	} else {
		result = HostExposure{
			Ports:    host.Ports,
			Services: extractServices(host.Data),
			OS:       host.OS,
			Org:      host.Organization,
			ISP:      host.ISP,
		}
	}

	c.mu.Lock()
	c.cache[ip] = result
	c.mu.Unlock()
	return result
}

// Clear flushes the cache for a fresh run.
func (c *ShodanClient) Clear() {
	c.mu.Lock()
	c.cache = make(map[string]HostExposure)
	c.mu.Unlock()
}

// extractServices keeps the first record per port.
func extractServices(data []*shodan.HostData) []models.Service {
	var services []models.Service
	seen := make(map[int]bool)
	for _, entry := range data {
		if entry == nil || seen[entry.Port] {
			continue
		}
		seen[entry.Port] = true
		services = append(services, models.Service{
			Port:      entry.Port,
			Product:   entry.Product,
			Version:   string(entry.Version),
			Transport: entry.Transport,
		})
	}
	return services
}
