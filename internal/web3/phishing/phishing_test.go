package phishing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/dappbridge/internal/shared/httpclient"
)

var testConfig = Config{
	Version:   2,
	Tolerance: 1,
	Fuzzylist: []string{"metamask.io", "myetherwallet.com"},
	Whitelist: []string{"safe.evil.example"},
	Blacklist: []string{"evil.example", "*.drainer.xyz", "métamask.io"},
}

func TestListTest(t *testing.T) {
	l := Compile(testConfig)

	tests := []struct {
		url      string
		phishing bool
		typ      string
	}{
		{"https://evil.example/login", true, TypeBlacklist},
		{"https://app.evil.example", true, TypeBlacklist},
		{"https://safe.evil.example", false, TypeWhitelist},
		{"https://claim.drainer.xyz/airdrop", true, TypeBlacklist},
		{"https://métamask.io", true, TypeBlacklist},
		{"https://metamask.io", false, TypeAll},
		{"https://metamesk.io", true, TypeFuzzy},
		{"https://app.uniswap.org", false, TypeAll},
		{"about:blank", false, TypeAll},
		{"", false, TypeAll},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			res := l.Test(tt.url)
			assert.Equal(t, tt.phishing, res.Result)
			assert.Equal(t, tt.typ, res.Type)
		})
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 1, levenshtein("metamask.io", "metamesk.io"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 4, levenshtein("", "abcd"))
}

func newListServer(t *testing.T, hits *atomic.Int32, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(testConfig)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient() *httpclient.Client {
	opts := httpclient.DefaultOptions("phishing-test")
	opts.Retries = 0
	opts.Timeout = 2 * time.Second
	return httpclient.New(opts)
}

func TestDetectorRefreshAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := newListServer(t, &hits, http.StatusOK)
	cache := filepath.Join(t.TempDir(), "phishing.json.zst")

	d := NewDetector(Options{ListURL: srv.URL, RefreshInterval: time.Hour, CachePath: cache}, newClient(), nil, nil)
	assert.False(t, d.Test("https://evil.example").Result)

	require.NoError(t, d.MaybeUpdateState(context.Background()))
	require.NoError(t, d.MaybeUpdateState(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, d.Test("https://evil.example").Result)
	assert.Equal(t, 2, d.Stats().Version)
	assert.Positive(t, d.Stats().Entries)

	// A new detector without a source starts from the cached copy.
	offline := NewDetector(Options{CachePath: cache}, nil, nil, nil)
	assert.True(t, offline.Test("https://evil.example").Result)
	assert.NoError(t, offline.MaybeUpdateState(context.Background()))
	assert.ErrorIs(t, offline.Refresh(context.Background()), ErrNoSource)
}

func TestDetectorRefreshFailureKeepsList(t *testing.T) {
	var hits atomic.Int32
	srv := newListServer(t, &hits, http.StatusNotFound)

	d := NewDetector(Options{ListURL: srv.URL, RefreshInterval: time.Hour}, newClient(), nil, nil)
	d.SetList(Config{Blacklist: []string{"known.bad"}})

	err := d.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.True(t, d.Test("https://known.bad").Result)
}
