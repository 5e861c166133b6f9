package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/config"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/pipeline"
	"github.com/mrmoe28/permitscout/internal/store"
)

// testConfig returns validated defaults tuned for fast local fetches.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawl.DelayMs = 1
	cfg.HTTP.TimeoutSeconds = 5
	cfg.Discover.ProbeTimeoutSec = 2
	return cfg
}

func TestNewWithDefaults(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, store.Noop{}, a.Store())
	require.NotNil(t, a.Logger())
	require.Equal(t, "memory", a.Config().Cache.Backend)
}

func TestNewRejectsUnknownCacheBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "bogus"

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache backend")
}

func TestNewRejectsUnknownArchiveBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Backend = "tape"

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "archive backend")
}

func TestNewWithMemoryArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Backend = "memory"

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	a.Close()
}

func TestAcquireRejectsInvalidWebsite(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Acquire(context.Background(), &permits.Jurisdiction{
		Name:    "Springfield",
		Website: "::not-a-url",
	}, nil, pipeline.Options{})
	require.Error(t, err)
}

func TestAcquireEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><title>Springfield Permits</title></head><body>
			<h1>Building Permits</h1>
			<table>
				<tr><th>Permit Type</th><th>Fee</th></tr>
				<tr><td>Building Permit</td><td>$500</td></tr>
			</table>
			<p>Call (555) 123-4567 or email permits@springfield.example.gov</p>
			<a href="/forms/building-permit-application.pdf">Building Permit Application</a>
		</body></html>`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Acquire(context.Background(), &permits.Jurisdiction{
		Name:    "Springfield",
		Website: ts.URL,
	}, nil, pipeline.Options{})
	require.NoError(t, err)
	require.NotNil(t, res)

	require.GreaterOrEqual(t, res.Confidence, 0.0)
	require.LessOrEqual(t, res.Confidence, 1.0)
	require.Contains(t, res.Sources, pipeline.SourceWebsite)
	require.NotEmpty(t, res.Fees)
	require.InDelta(t, 500.0, res.Fees[0].Amount, 0.001)
}

func TestCrawlSinglePage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><p>Nothing to see here.</p></body></html>`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	res, err := a.Crawl(context.Background(), ts.URL)
	require.NoError(t, err)
	require.Equal(t, 1, res.PagesVisited)
	require.Empty(t, res.Forms)
	require.Empty(t, res.Fees)
}
