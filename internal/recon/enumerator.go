package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MaxSubdomains caps the candidate set carried into resolution.
const MaxSubdomains = 15

const (
	defaultCTBaseURL = "https://crt.sh"
	ctTimeout        = 20 * time.Second
	defaultWorkers   = 8
)

// brutePrefixes are probed for every scan regardless of CT log results.
var brutePrefixes = []string{"dev", "test", "staging", "admin", "api", "mail", "portal", "beta"}

// HostProber reports whether a hostname resolves. The resolver satisfies
// this for production use.
type HostProber interface {
	Resolves(ctx context.Context, host string) bool
}

// Enumerator discovers candidate hostnames from certificate transparency
// logs and a fixed brute-force list, then validates them over DNS.
type Enumerator struct {
	httpClient *http.Client
	ctBaseURL  string
	prober     HostProber
	workers    int
}

// NewEnumerator builds an enumerator validating candidates with prober.
func NewEnumerator(prober HostProber) *Enumerator {
	return &Enumerator{
		httpClient: &http.Client{Timeout: ctTimeout},
		ctBaseURL:  defaultCTBaseURL,
		prober:     prober,
		workers:    defaultWorkers,
	}
}

type ctEntry struct {
	NameValue string `json:"name_value"`
}

// Enumerate returns up to MaxSubdomains validated hostnames for domain in
// lexicographic order. CT log failures degrade to the brute-force list.
func (e *Enumerator) Enumerate(ctx context.Context, domain string) ([]string, error) {
	candidates := make(map[string]bool)
	candidates[domain] = true
	for _, prefix := range brutePrefixes {
		candidates[prefix+"."+domain] = true
	}
	for _, name := range e.fetchCTNames(ctx, domain) {
		candidates[name] = true
	}

	ordered := make([]string, 0, len(candidates))
	for name := range candidates {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	alive := make([]bool, len(ordered))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.workerCount())
	for i, name := range ordered {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			alive[i] = e.prober.Resolves(ctx, name)
		}(i, name)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []string
	for i, name := range ordered {
		if !alive[i] {
			continue
		}
		out = append(out, name)
		if len(out) == MaxSubdomains {
			break
		}
	}
	log.Printf("recon: enumerated %d live hosts for %s (%d candidates)", len(out), domain, len(ordered))
	return out, nil
}

// fetchCTNames queries crt.sh. Every failure mode yields an empty
// contribution so the scan can proceed on brute force alone.
func (e *Enumerator) fetchCTNames(ctx context.Context, domain string) []string {
	ctx, cancel := context.WithTimeout(ctx, ctTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/?q=%s&output=json", e.ctBaseURL, url.QueryEscape("%."+domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Printf("recon: crt.sh request build failed for %s: %v", domain, err)
		return nil
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		log.Printf("recon: crt.sh query failed for %s: %v", domain, err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("recon: crt.sh returned status %d for %s", resp.StatusCode, domain)
		return nil
	}

	var entries []ctEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		log.Printf("recon: crt.sh returned invalid JSON for %s: %v", domain, err)
		return nil
	}

	suffix := "." + domain
	var names []string
	for _, entry := range entries {
		for _, name := range strings.Split(entry.NameValue, "\n") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" || strings.HasPrefix(name, "*") {
				continue
			}
			if name == domain || strings.HasSuffix(name, suffix) {
				names = append(names, name)
			}
		}
	}
	return names
}

func (e *Enumerator) workerCount() int {
	if e.workers > 0 {
		return e.workers
	}
	return defaultWorkers
}
