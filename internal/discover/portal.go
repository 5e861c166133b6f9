package discover

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrmoe28/permitscout/internal/urlutil"
)

// PortalType classifies what kind of permit surface a discovered page is.
type PortalType string

// Portal classifications. The order of portalTypeOrder is the tie-break:
// when keyword densities are equal the earlier category wins.
const (
	PortalOnline      PortalType = "online_portal"
	PortalApplication PortalType = "application_page"
	PortalFormLibrary PortalType = "form_library"
	PortalDocuments   PortalType = "document_center"
)

// Portal is one classified permit surface on a confirmed site.
type Portal struct {
	URL    string     `json:"url"`
	Type   PortalType `json:"type"`
	Source string     `json:"source"`
}

// The weights and orderings below mirror the probing behavior the service
// was tuned with. They are package variables, not derived values; adjust
// them here rather than inferring intent.
var (
	// Paths probed directly for hosted or in-house portals.
	portalPaths = []string{
		"/permits/apply",
		"/permitcenter",
		"/permit-center",
		"/onlineservices",
		"/online-services",
		"/eservices",
		"/citizenaccess",
		"/selfservice",
		"/portal",
		"/apply-online",
		"/epermits",
	}

	// Common permit paths validated only when portal probing and link
	// scanning both come up empty.
	fallbackPaths = []string{
		"/permits",
		"/building-permits",
		"/building",
		"/planning/permits",
		"/development-services",
		"/departments/building",
	}

	// Anchor text or href hints that a base-page link leads to a portal.
	portalLinkRe = regexp.MustCompile(`(?i)apply online|online permit|citizen access|e-?services|self.?service|permit portal|online application|portal`)

	portalTypeOrder = []PortalType{PortalOnline, PortalApplication, PortalFormLibrary, PortalDocuments}

	portalTypeKeywords = map[PortalType][]string{
		PortalOnline:      {"citizen access", "online portal", "self service", "selfservice", "log in", "login", "create an account", "track your application", "e-permit", "epermit"},
		PortalApplication: {"apply", "application", "submit", "get started", "how to apply"},
		PortalFormLibrary: {"form", "download", "printable", "fillable"},
		PortalDocuments:   {"document", "handout", "brochure", "guide", "resource"},
	}

	// Base-page links surviving the portal hint filter, before (host, path)
	// dedup.
	maxLinkCandidates = 15
)

var portalTypePatterns = compileTypePatterns()

func compileTypePatterns() map[PortalType][]*regexp.Regexp {
	patterns := make(map[PortalType][]*regexp.Regexp, len(portalTypeKeywords))
	for portalType, keywords := range portalTypeKeywords {
		res := make([]*regexp.Regexp, 0, len(keywords))
		for _, kw := range keywords {
			res = append(res, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)))
		}
		patterns[portalType] = res
	}
	return patterns
}

type portalCandidate struct {
	url    string
	source string
}

// DiscoverPortals locates permit portals on a confirmed base site: fixed
// portal paths are probed and the base page's links are scanned for portal
// hints; every accessible candidate is classified by keyword density. When
// both strategies come up empty, a fixed list of common permit paths is
// validated as a fallback. An empty return is a normal outcome.
func (d *Discoverer) DiscoverPortals(ctx context.Context, baseURL string) []Portal {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil
	}

	candidates := pathCandidates(base, portalPaths, "path_probe")
	candidates = append(candidates, d.linkCandidates(ctx, base)...)
	candidates = dedupeByHostPath(candidates)

	portals := d.classifyCandidates(ctx, candidates)
	if len(portals) > 0 {
		return portals
	}

	d.logger.Debug("no portal via probing or link scan, trying fallback paths",
		zap.String("base", baseURL))
	fallback := dedupeByHostPath(pathCandidates(base, fallbackPaths, "fallback"))
	return d.classifyCandidates(ctx, fallback)
}

func pathCandidates(base *url.URL, paths []string, source string) []portalCandidate {
	candidates := make([]portalCandidate, 0, len(paths))
	for _, p := range paths {
		ref := &url.URL{Path: p}
		candidates = append(candidates, portalCandidate{
			url:    base.ResolveReference(ref).String(),
			source: source,
		})
	}
	return candidates
}

// linkCandidates fetches the base page once and keeps links whose text or
// target hints at a portal. Off-site targets stay in: hosted portals live on
// vendor domains, which is why candidates dedupe by (host, path).
func (d *Discoverer) linkCandidates(ctx context.Context, base *url.URL) []portalCandidate {
	page, err := d.getter.Get(ctx, base.String())
	if err != nil {
		d.logger.Debug("base page fetch failed, skipping link scan",
			zap.String("url", base.String()), zap.Error(err))
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}

	var candidates []portalCandidate
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href := sel.AttrOr("href", "")
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if !portalLinkRe.MatchString(text) && !portalLinkRe.MatchString(href) {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return true
		}
		abs.Fragment = ""
		candidates = append(candidates, portalCandidate{url: abs.String(), source: "link_scan"})
		return len(candidates) < maxLinkCandidates
	})
	return candidates
}

// dedupeByHostPath collapses candidates that normalize to the same
// (host, path), keeping the first.
func dedupeByHostPath(candidates []portalCandidate) []portalCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]portalCandidate, 0, len(candidates))
	for _, c := range candidates {
		canon, err := urlutil.Canonicalize(c.url)
		if err != nil {
			continue
		}
		u, err := url.Parse(canon)
		if err != nil {
			continue
		}
		key := u.Host + u.Path
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// classifyCandidates fetches each candidate through the bounded pool and
// classifies accessible ones. Failures skip the candidate, never the batch.
func (d *Discoverer) classifyCandidates(ctx context.Context, candidates []portalCandidate) []Portal {
	results := make([]*Portal, len(candidates))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxParallelProbes)
	for i, candidate := range candidates {
		g.Go(func() error {
			page, err := d.getter.Get(gCtx, candidate.url)
			if err != nil {
				d.logger.Debug("portal candidate unreachable",
					zap.String("url", candidate.url), zap.Error(err))
				return nil
			}
			portalType, hits := classifyPortal(page.Body)
			d.logger.Debug("portal candidate classified",
				zap.String("url", candidate.url),
				zap.String("type", string(portalType)),
				zap.Int("keyword_hits", hits))
			results[i] = &Portal{URL: candidate.url, Type: portalType, Source: candidate.source}
			return nil
		})
	}
	_ = g.Wait()

	portals := make([]Portal, 0, len(candidates))
	for _, r := range results {
		if r != nil {
			portals = append(portals, *r)
		}
	}
	return portals
}

// classifyPortal picks the category with the highest keyword-match density.
// Ties, including the all-zero case, resolve to the earliest category in
// portalTypeOrder.
func classifyPortal(body []byte) (PortalType, int) {
	text := string(body)
	best := portalTypeOrder[0]
	bestHits := 0
	for _, portalType := range portalTypeOrder {
		hits := 0
		for _, re := range portalTypePatterns[portalType] {
			hits += len(re.FindAllStringIndex(text, -1))
		}
		if hits > bestHits {
			best = portalType
			bestHits = hits
		}
	}
	return best, bestHits
}
