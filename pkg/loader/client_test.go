package loader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popreport/pkg/dataset"
)

func TestClientURLs(t *testing.T) {
	c, err := NewClient("https://cdn.example.com/data/")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/data/manifest.v1.json", c.ManifestURL())
	assert.Equal(t, "https://cdn.example.com/data/monthly/USD/2024-01.json", c.MonthURL("USD", "2024-01"))

	c, err = NewClient("https://cdn.example.com/data", WithManifestVersion(3))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/data/manifest.v3.json", c.ManifestURL())

	_, err = NewClient("  ")
	assert.Error(t, err)
}

func TestClientLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "monthly", "EUR"), 0o755))
	writeJSON(t, filepath.Join(dir, "manifest.v2.json"), dataset.Manifest{
		Version:         "2",
		Asset:           "BTC",
		MonthsAvailable: []string{"2024-01"},
		Currencies:      []string{"EUR"},
	})
	writeJSON(t, filepath.Join(dir, "monthly", "EUR", "2024-01.json"), testRecord("2024-01", "EUR", 39000))

	c, err := NewClient(dir, WithManifestVersion(2))
	require.NoError(t, err)
	assert.Equal(t, dir, c.Base())
	ctx := context.Background()

	m, err := c.FetchManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01"}, m.MonthsAvailable)

	rec, err := c.FetchMonth(ctx, "EUR", "2024-01")
	require.NoError(t, err)
	assert.InDelta(t, 39000, rec.EntryPrice, 1e-9)

	_, err = c.FetchMonth(ctx, "EUR", "2023-12")
	require.ErrorIs(t, err, ErrNotFound)
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestClientRetries(t *testing.T) {
	tests := []struct {
		name       string
		failures   int32
		status     int
		maxRetries int
		wantHits   int32
		wantErr    bool
	}{
		{name: "recovers from 503", failures: 2, status: http.StatusServiceUnavailable, maxRetries: 2, wantHits: 3},
		{name: "retries 429", failures: 1, status: http.StatusTooManyRequests, maxRetries: 1, wantHits: 2},
		{name: "budget exhausted", failures: 5, status: http.StatusBadGateway, maxRetries: 1, wantHits: 2, wantErr: true},
		{name: "404 is final", failures: 5, status: http.StatusNotFound, maxRetries: 2, wantHits: 1, wantErr: true},
		{name: "403 is final", failures: 5, status: http.StatusForbidden, maxRetries: 2, wantHits: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&hits, 1) <= tt.failures {
					http.Error(w, "try later", tt.status)
					return
				}
				_ = json.NewEncoder(w).Encode(dataset.Manifest{Version: "1"})
			}))
			defer server.Close()

			c, err := NewClient(server.URL, WithMaxRetries(tt.maxRetries))
			require.NoError(t, err)
			_, err = c.FetchManifest(context.Background())
			if tt.wantErr {
				var fe *FetchError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, tt.status, fe.StatusCode)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantHits, atomic.LoadInt32(&hits))
		})
	}
}

func TestClientDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer server.Close()

	c, err := NewClient(server.URL)
	require.NoError(t, err)
	_, err = c.FetchMonth(context.Background(), "USD", "2024-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestClientHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, WithMaxRetries(5))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.FetchManifest(ctx)
	assert.Error(t, err)
}
