package discover

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrmoe28/permitscout/internal/fetch"
)

type stubGetter struct {
	mu    sync.Mutex
	pages map[string]fetch.Page
	calls map[string]int
}

func (s *stubGetter) Get(_ context.Context, rawURL string) (fetch.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[rawURL]++
	page, ok := s.pages[rawURL]
	if !ok {
		return fetch.Page{}, errors.New("unreachable")
	}
	return page, nil
}

func htmlPage(rawURL, body string) fetch.Page {
	return fetch.Page{URL: rawURL, FinalURL: rawURL, StatusCode: 200, Body: []byte(body)}
}

func TestClassifyPortal(t *testing.T) {
	cases := []struct {
		name string
		body string
		want PortalType
	}{
		{
			name: "online portal",
			body: "Citizen Access login. Create an account to track your application.",
			want: PortalOnline,
		},
		{
			name: "application page",
			body: "Apply for a permit. Submit your application today. How to apply is explained below.",
			want: PortalApplication,
		},
		{
			name: "form library",
			body: "Download printable forms for every permit.",
			want: PortalFormLibrary,
		},
		{
			name: "document center",
			body: "Documents and handouts. Resource guides for builders.",
			want: PortalDocuments,
		},
		{
			name: "zero hits fall to first category",
			body: "Nothing relevant here.",
			want: PortalOnline,
		},
		{
			name: "equal density resolves by category order",
			body: "login apply",
			want: PortalOnline,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := classifyPortal([]byte(tc.body))
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDiscoverPortalsViaPathProbe(t *testing.T) {
	getter := &stubGetter{pages: map[string]fetch.Page{
		"https://springfield.gov/citizenaccess": htmlPage(
			"https://springfield.gov/citizenaccess",
			"Citizen Access login. Create an account.",
		),
	}}
	d := newTestDiscoverer(t, nil, getter, Config{})

	portals := d.DiscoverPortals(context.Background(), "https://springfield.gov")

	require.Len(t, portals, 1)
	require.Equal(t, "https://springfield.gov/citizenaccess", portals[0].URL)
	require.Equal(t, PortalOnline, portals[0].Type)
	require.Equal(t, "path_probe", portals[0].Source)
}

func TestDiscoverPortalsLinkScanFindsVendorPortal(t *testing.T) {
	base := "https://springfield.gov"
	getter := &stubGetter{pages: map[string]fetch.Page{
		base: htmlPage(base, `<html><body>
			<a href="https://springfield.viewpointcloud.com">Apply Online</a>
			<a href="/news">City News</a>
		</body></html>`),
		"https://springfield.viewpointcloud.com": htmlPage(
			"https://springfield.viewpointcloud.com",
			"Citizen Access login for Springfield. Create an account.",
		),
	}}
	d := newTestDiscoverer(t, nil, getter, Config{})

	portals := d.DiscoverPortals(context.Background(), base)

	require.Len(t, portals, 1)
	require.Equal(t, "https://springfield.viewpointcloud.com", portals[0].URL)
	require.Equal(t, PortalOnline, portals[0].Type)
	require.Equal(t, "link_scan", portals[0].Source)
	require.Zero(t, getter.calls["https://springfield.gov/news"], "non-portal links are not probed")
}

func TestDiscoverPortalsMergesByHostPath(t *testing.T) {
	base := "https://springfield.gov"
	getter := &stubGetter{pages: map[string]fetch.Page{
		base: htmlPage(base, `<html><body>
			<a href="/portal">Online Portal</a>
			<a href="https://SPRINGFIELD.GOV/portal#top">Portal</a>
		</body></html>`),
		"https://springfield.gov/portal": htmlPage(
			"https://springfield.gov/portal",
			"Apply here. Submit your application.",
		),
	}}
	d := newTestDiscoverer(t, nil, getter, Config{})

	portals := d.DiscoverPortals(context.Background(), base)

	require.Len(t, portals, 1)
	require.Equal(t, PortalApplication, portals[0].Type)
	require.Equal(t, "path_probe", portals[0].Source, "path probe enumerates before the link scan")
	require.Equal(t, 1, getter.calls["https://springfield.gov/portal"], "merged candidates are fetched once")
}

func TestDiscoverPortalsFallbackPaths(t *testing.T) {
	base := "https://springfield.gov"
	getter := &stubGetter{pages: map[string]fetch.Page{
		base: htmlPage(base, `<html><body><a href="/about">About Us</a><p>Welcome.</p></body></html>`),
		"https://springfield.gov/permits": htmlPage(
			"https://springfield.gov/permits",
			"Download printable forms for building work.",
		),
	}}
	d := newTestDiscoverer(t, nil, getter, Config{})

	portals := d.DiscoverPortals(context.Background(), base)

	require.Len(t, portals, 1)
	require.Equal(t, "https://springfield.gov/permits", portals[0].URL)
	require.Equal(t, PortalFormLibrary, portals[0].Type)
	require.Equal(t, "fallback", portals[0].Source)
}

func TestDiscoverPortalsEmptyIsNormal(t *testing.T) {
	d := newTestDiscoverer(t, nil, &stubGetter{}, Config{})

	portals := d.DiscoverPortals(context.Background(), "https://springfield.gov")

	require.Empty(t, portals)
}

func TestDiscoverPortalsRejectsUnparseableBase(t *testing.T) {
	d := newTestDiscoverer(t, nil, &stubGetter{}, Config{})

	require.Nil(t, d.DiscoverPortals(context.Background(), "://nope"))
	require.Nil(t, d.DiscoverPortals(context.Background(), "not a url"))
}
