package loader

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Replays a recorded manifest and shard fetch. Skips when the cassette is
// absent unless RECORD_CASSETTES=1 and POP_SHARD_BASE_URL point at a live host.
func TestClient_FetchShards_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "shard_host")
	base := os.Getenv("POP_SHARD_BASE_URL")
	if _, err := os.Stat(cassette + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" || base == "" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 and POP_SHARD_BASE_URL to record: %s.yaml", cassette)
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(cassette), 0o755))
	}
	if base == "" {
		base = "https://popreport.example/data"
	}

	r, err := recorder.New(cassette)
	require.NoError(t, err)
	defer func() { _ = r.Stop() }()

	client, err := NewClient(base, WithHTTPClient(&http.Client{Transport: r}), WithMaxRetries(0))
	require.NoError(t, err)
	ctx := context.Background()

	manifest, err := client.FetchManifest(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, manifest.MonthsAvailable)
	assert.NotEmpty(t, manifest.Currencies)

	rec, err := client.FetchMonth(ctx, "USD", manifest.MonthsAvailable[0])
	require.NoError(t, err)
	assert.NoError(t, rec.Validate())
	assert.Greater(t, rec.EntryPrice, 0.0)
}
