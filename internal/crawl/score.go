package crawl

import (
	"sort"
	"strings"

	"github.com/mrmoe28/permitscout/internal/extract"
	"github.com/mrmoe28/permitscout/internal/urlutil"
)

// Weights are the link-relevance scoring constants. A link's score is its
// best-matching keyword tier plus PathBonus for every permit path segment
// its URL contains.
type Weights struct {
	High      int
	Medium    int
	Low       int
	PathBonus int
}

func (w Weights) withDefaults() Weights {
	if w.High <= 0 {
		w.High = 10
	}
	if w.Medium <= 0 {
		w.Medium = 5
	}
	if w.Low <= 0 {
		w.Low = 2
	}
	if w.PathBonus <= 0 {
		w.PathBonus = 3
	}
	return w
}

// Keyword tiers, matched against link text and URL together. High-tier
// phrases signal an application surface, the medium tier general permit
// material, the low tier adjacent departments that sometimes host permit
// pages.
var (
	highKeywords = []string{
		"permit application",
		"apply for a permit",
		"apply for permit",
		"building permit",
		"permit center",
		"online permit",
		"epermit",
		"e-permit",
		"permit portal",
	}
	mediumKeywords = []string{
		"permit",
		"application",
		"apply",
		"building",
		"electrical",
		"plumbing",
		"mechanical",
		"license",
		"inspection",
		"form",
		"fee",
		"contractor",
	}
	lowKeywords = []string{
		"planning",
		"zoning",
		"development",
		"land use",
		"code enforcement",
		"public works",
	}

	bonusSegments = []string{"/permits/", "/apply", "/forms", "/fees"}
)

type scoredLink struct {
	url       string
	canonical string
	score     int
}

// selectLinks turns one page's outgoing links into frontier entries: same
// site as the crawl only, not yet visited, relevance score above zero, and
// at most cfg.LinksPerPage survivors ranked by score.
func (c *Crawler) selectLinks(crawlHost string, links []extract.Link, visited map[string]struct{}) []scoredLink {
	var scored []scoredLink
	seen := make(map[string]struct{}, len(links))
	for _, link := range links {
		if !urlutil.SameSite(crawlHost, urlutil.Host(link.URL)) {
			continue
		}
		canon, err := urlutil.Canonicalize(link.URL)
		if err != nil {
			continue
		}
		if _, ok := visited[canon]; ok {
			continue
		}
		if _, ok := seen[canon]; ok {
			continue
		}
		score := scoreLink(link, c.cfg.Weights)
		if score == 0 {
			continue
		}
		seen[canon] = struct{}{}
		scored = append(scored, scoredLink{url: link.URL, canonical: canon, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > c.cfg.LinksPerPage {
		scored = scored[:c.cfg.LinksPerPage]
	}
	return scored
}

// scoreLink rates one link's permit relevance. Tiers are exclusive, best
// match wins; path bonuses stack on top of the tier score.
func scoreLink(link extract.Link, w Weights) int {
	hay := strings.ToLower(link.Text + " " + link.URL)

	score := 0
	switch {
	case containsAny(hay, highKeywords):
		score = w.High
	case containsAny(hay, mediumKeywords):
		score = w.Medium
	case containsAny(hay, lowKeywords):
		score = w.Low
	}

	lowered := strings.ToLower(link.URL)
	for _, seg := range bonusSegments {
		if strings.Contains(lowered, seg) {
			score += w.PathBonus
		}
	}
	return score
}

func containsAny(hay string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(hay, needle) {
			return true
		}
	}
	return false
}
