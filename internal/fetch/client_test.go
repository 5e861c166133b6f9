package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/telemetry"
)

type scriptedFetcher struct {
	mu    sync.Mutex
	calls int
	errs  []error
	page  Page
}

func (s *scriptedFetcher) Fetch(_ context.Context, rawURL string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return Page{}, s.errs[idx]
	}
	page := s.page
	page.URL = rawURL
	return page, nil
}

func newTestClient(t *testing.T, fetcher Fetcher) *Client {
	t.Helper()
	telemetry.Init()
	client, err := NewClient(Config{RespectRobots: false}, zap.NewNop())
	require.NoError(t, err)
	client.WithFetcher(fetcher)
	client.WithRetryPolicy(NewRetryPolicy(3, time.Millisecond, 2*time.Millisecond))
	return client
}

func TestClientGetRetriesTransientFailures(t *testing.T) {
	fetcher := &scriptedFetcher{
		errs: []error{&StatusError{Code: 503}, &StatusError{Code: 503}},
		page: Page{StatusCode: 200, Body: []byte("<html>permits</html>")},
	}
	client := newTestClient(t, fetcher)

	page, err := client.Get(context.Background(), "https://springfield.gov/permits")
	require.NoError(t, err)
	require.Equal(t, 200, page.StatusCode)
	require.Equal(t, 3, fetcher.calls)
}

func TestClientGetStopsOnPermanentFailure(t *testing.T) {
	fetcher := &scriptedFetcher{
		errs: []error{&StatusError{Code: 404}},
	}
	client := newTestClient(t, fetcher)

	_, err := client.Get(context.Background(), "https://springfield.gov/missing")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 404, statusErr.Code)
	require.Equal(t, 1, fetcher.calls)
}

func TestClientGetExhaustsRetries(t *testing.T) {
	fetcher := &scriptedFetcher{
		errs: []error{
			&StatusError{Code: 503},
			&StatusError{Code: 503},
			&StatusError{Code: 503},
			&StatusError{Code: 503},
		},
	}
	client := newTestClient(t, fetcher)

	_, err := client.Get(context.Background(), "https://springfield.gov/permits")
	require.Error(t, err)
	require.Equal(t, 3, fetcher.calls)
}

type denyAllRobots struct{}

func (denyAllRobots) Allowed(context.Context, string) bool { return false }

func TestClientGetHonorsRobots(t *testing.T) {
	fetcher := &scriptedFetcher{page: Page{StatusCode: 200}}
	client := newTestClient(t, fetcher)
	client.robots = denyAllRobots{}

	_, err := client.Get(context.Background(), "https://springfield.gov/permits")
	require.ErrorIs(t, err, ErrRobotsDisallowed)
	require.Zero(t, fetcher.calls)
}

type staticRenderer struct {
	page Page
	err  error
}

func (r staticRenderer) Render(context.Context, string) (Page, error) {
	return r.page, r.err
}

func TestClientGetEscalatesToRenderer(t *testing.T) {
	fetcher := &scriptedFetcher{
		page: Page{StatusCode: 200, Body: []byte("<html>Please enable JavaScript</html>")},
	}
	client := newTestClient(t, fetcher)
	rendered := Page{StatusCode: 200, Body: []byte("<html><div id=\"app\">fee schedule content here</div></html>"), Rendered: true}
	client.WithRenderer(staticRenderer{page: rendered}, NewRenderDetector(0, nil, []string{"enable javascript"}))

	page, err := client.Get(context.Background(), "https://portal.springfield.gov/apply")
	require.NoError(t, err)
	require.True(t, page.Rendered)
	require.Contains(t, string(page.Body), "fee schedule")
}

func TestClientGetTripsBreakerAfterRepeatedFailures(t *testing.T) {
	fetcher := &scriptedFetcher{
		errs: []error{
			&StatusError{Code: 404}, &StatusError{Code: 404}, &StatusError{Code: 404},
		},
	}
	client := newTestClient(t, fetcher)
	client.breaker = NewHostBreaker(3)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := client.Get(ctx, "https://downhost.gov/permits")
		require.Error(t, err)
	}

	_, err := client.Get(ctx, "https://downhost.gov/other")
	require.ErrorIs(t, err, ErrHostBlocked)
	require.Equal(t, 3, fetcher.calls, "blocked host must not reach the fetcher")
}

func TestClientGetKeepsStaticBodyWhenRenderFails(t *testing.T) {
	fetcher := &scriptedFetcher{
		page: Page{StatusCode: 200, Body: []byte("<html>Please enable JavaScript</html>")},
	}
	client := newTestClient(t, fetcher)
	client.WithRenderer(staticRenderer{err: errors.New("browser crashed")}, NewRenderDetector(0, nil, []string{"enable javascript"}))

	page, err := client.Get(context.Background(), "https://portal.springfield.gov/apply")
	require.NoError(t, err)
	require.False(t, page.Rendered)
}
