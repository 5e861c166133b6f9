package crawl

import (
	"strings"
	"time"

	"github.com/mrmoe28/permitscout/internal/detect"
	"github.com/mrmoe28/permitscout/internal/extract"
	"github.com/mrmoe28/permitscout/internal/permits"
)

// aggregator folds per-page results into one CrawlResult: forms dedupe by
// URL, fees by (type, amount), contacts overlay field-wise per department,
// requirements collapse as a set, processing-time maps merge with later
// pages winning on key collision.
type aggregator struct {
	res        *permits.CrawlResult
	contactIdx map[string]int
}

func newAggregator(startURL string) *aggregator {
	return &aggregator{
		res:        &permits.CrawlResult{StartURL: startURL},
		contactIdx: make(map[string]int),
	}
}

func (a *aggregator) pages() int { return a.res.PagesVisited }

// countPage records a visited page that contributed no data.
func (a *aggregator) countPage() { a.res.PagesVisited++ }

// addPage folds one page's extraction and detection results into the
// aggregate. det may be nil when detection is disabled.
func (a *aggregator) addPage(content *extract.Content, det *detect.Result) {
	a.res.PagesVisited++

	if det != nil && len(det.Forms) > 0 {
		a.res.Forms = permits.DedupeForms(append(a.res.Forms, det.Forms...))
	}
	if len(content.Fees) > 0 {
		a.res.Fees = permits.DedupeFees(append(a.res.Fees, content.Fees...))
	}
	a.addContact(content.Contact)
	if len(content.Requirements) > 0 {
		a.res.Requirements = permits.MergeRequirements(a.res.Requirements, content.Requirements)
	}
	if len(content.ProcessingTimes) > 0 {
		a.res.ProcessingTimes = permits.MergeProcessingTimes(a.res.ProcessingTimes, content.ProcessingTimes)
	}
}

// addContact merges one page's contact into the entry for the department it
// names. Non-empty fields from later pages overwrite, so a detail page can
// correct the phone number a directory page got wrong; empty fields never
// erase earlier values. Contacts naming no department share one entry.
func (a *aggregator) addContact(c *permits.ContactInfo) {
	if c == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(c.Department))
	if idx, ok := a.contactIdx[key]; ok {
		a.res.Contacts[idx] = *permits.OverlayContacts(&a.res.Contacts[idx], c)
		return
	}
	a.contactIdx[key] = len(a.res.Contacts)
	a.res.Contacts = append(a.res.Contacts, *c)
}

// result stamps the aggregate and hands it over.
func (a *aggregator) result(now time.Time) *permits.CrawlResult {
	a.res.FetchedAt = now
	return a.res
}
