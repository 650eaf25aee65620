package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setProber struct {
	alive map[string]bool
}

func (p *setProber) Resolves(_ context.Context, host string) bool {
	return p.alive[host]
}

type allAliveProber struct{}

func (allAliveProber) Resolves(context.Context, string) bool { return true }

func ctServer(t *testing.T, entries []map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "%.example.com", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("output"))
		require.NoError(t, json.NewEncoder(w).Encode(entries))
	}))
}

func newTestEnumerator(baseURL string, prober HostProber) *Enumerator {
	e := NewEnumerator(prober)
	e.ctBaseURL = baseURL
	return e
}

func TestEnumerateMergesCTAndBruteForce(t *testing.T) {
	srv := ctServer(t, []map[string]string{
		{"name_value": "shop.example.com\n*.example.com"},
		{"name_value": "VPN.Example.Com "},
		{"name_value": "evil.other.com"},
		{"name_value": "example.com"},
	})
	defer srv.Close()

	alive := map[string]bool{
		"example.com":      true,
		"shop.example.com": true,
		"vpn.example.com":  true,
		"dev.example.com":  true,
	}
	e := newTestEnumerator(srv.URL, &setProber{alive: alive})

	hosts, err := e.Enumerate(context.Background(), "example.com")
	require.NoError(t, err)

	// Wildcards and out-of-zone names are dropped, CT names lowercased,
	// dead brute-force candidates filtered, result sorted.
	assert.Equal(t, []string{
		"dev.example.com",
		"example.com",
		"shop.example.com",
		"vpn.example.com",
	}, hosts)
}

func TestEnumerateCTFailureFallsBackToBruteForce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := newTestEnumerator(srv.URL, allAliveProber{})
	hosts, err := e.Enumerate(context.Background(), "example.com")
	require.NoError(t, err)

	want := []string{"example.com"}
	for _, p := range brutePrefixes {
		want = append(want, p+".example.com")
	}
	sort.Strings(want)
	assert.Equal(t, want, hosts)
}

func TestEnumerateInvalidCTJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>rate limited</html>")
	}))
	defer srv.Close()

	e := newTestEnumerator(srv.URL, allAliveProber{})
	hosts, err := e.Enumerate(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Len(t, hosts, len(brutePrefixes)+1)
}

func TestEnumerateCapsResults(t *testing.T) {
	entries := make([]map[string]string, 0, 30)
	for i := 0; i < 30; i++ {
		entries = append(entries, map[string]string{
			"name_value": fmt.Sprintf("host%02d.example.com", i),
		})
	}
	srv := ctServer(t, entries)
	defer srv.Close()

	e := newTestEnumerator(srv.URL, allAliveProber{})
	hosts, err := e.Enumerate(context.Background(), "example.com")
	require.NoError(t, err)

	require.Len(t, hosts, MaxSubdomains)
	// Deterministic: the lexicographically first candidates survive.
	assert.True(t, sort.StringsAreSorted(hosts))
	assert.Equal(t, "admin.example.com", hosts[0])
}

func TestEnumerateCancelledContext(t *testing.T) {
	srv := ctServer(t, nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEnumerator(srv.URL, allAliveProber{})
	_, err := e.Enumerate(ctx, "example.com")
	assert.Error(t, err)
}
