package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/cache"
	"github.com/mrmoe28/permitscout/internal/detect"
	"github.com/mrmoe28/permitscout/internal/discover"
	"github.com/mrmoe28/permitscout/internal/extract"
	"github.com/mrmoe28/permitscout/internal/fetch"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/understand"
	"github.com/mrmoe28/permitscout/internal/urlutil"
)

// Portal pages sampled for detection beyond what the fetch phase already
// pulled.
const maxPortalPages = 3

// fetchPhase pulls the jurisdiction's site and its known permit page,
// extracts heuristic content from each, and lets the understanding service
// refine whatever the heuristics produced.
func (o *Orchestrator) fetchPhase(ctx context.Context, st *runState) error {
	targets := fetchTargets(st.res.Jurisdiction)
	if len(targets) == 0 {
		return errors.New("no website to fetch")
	}
	for _, target := range targets {
		page, err := o.fetchPage(ctx, st, target)
		if err != nil {
			o.logger.Warn("page fetch failed",
				zap.String("url", target), zap.Error(err))
			continue
		}
		st.rawBody = page.Body
		o.ingestPage(ctx, st, page)
	}
	if len(st.pages) == 0 {
		return fmt.Errorf("no page fetched (%d candidates)", len(targets))
	}
	return nil
}

func fetchTargets(j *permits.Jurisdiction) []string {
	var targets []string
	if j.Website != "" {
		targets = append(targets, j.Website)
	}
	if j.PermitURL != "" && !sameCanonical(j.PermitURL, j.Website) {
		targets = append(targets, j.PermitURL)
	}
	return targets
}

func sameCanonical(a, b string) bool {
	ca, errA := urlutil.Canonicalize(a)
	cb, errB := urlutil.Canonicalize(b)
	return errA == nil && errB == nil && ca == cb
}

// ingestPage extracts one fetched page and folds its content into the
// accumulating result.
func (o *Orchestrator) ingestPage(ctx context.Context, st *runState, page fetch.Page) {
	o.archivePage(ctx, page)
	srcURL := pageURLOf(page)

	content, err := o.deps.Extractor.Extract(srcURL, page.Body)
	if err != nil {
		o.logger.Debug("extraction failed",
			zap.String("url", srcURL), zap.Error(err))
		content = &extract.Content{URL: srcURL}
	}
	st.pages = append(st.pages, pageData{page: page, content: content})
	st.addSource(SourceWebsite)

	quality := content.Quality()
	if quality > st.heuristicQuality {
		st.heuristicQuality = quality
	}
	o.cachePage(ctx, page, quality)

	o.mergeHeuristics(st, content)
	o.understandText(ctx, st, content.Text, srcURL, page.Body)
}

// mergeHeuristics folds heuristic page content into the result. Contacts
// overlay so the permit page can correct the home page.
func (o *Orchestrator) mergeHeuristics(st *runState, content *extract.Content) {
	res := st.res
	res.Fees = permits.DedupeFees(append(res.Fees, content.Fees...))
	res.Contact = permits.OverlayContacts(res.Contact, content.Contact)
	res.Requirements = permits.MergeRequirements(res.Requirements, content.Requirements)
	res.ProcessingTimes = permits.MergeProcessingTimes(res.ProcessingTimes, content.ProcessingTimes)
}

// detectPhase runs layered detection over the fetched pages plus a bounded
// sample of discovered portal pages.
func (o *Orchestrator) detectPhase(ctx context.Context, st *runState) error {
	if len(st.pages) == 0 {
		return errSkipPhase
	}
	seen := make(map[string]struct{}, len(st.pages))
	for _, pd := range st.pages {
		pageURL := pageURLOf(pd.page)
		if key, err := urlutil.Canonicalize(pageURL); err == nil {
			seen[key] = struct{}{}
		}
		o.mergeDetection(st, o.deps.Detector.Detect(ctx, pageURL, pd.page.Body))
	}

	if base := st.res.Jurisdiction.Website; base != "" {
		st.portals = o.deps.Resolver.DiscoverPortals(ctx, base)
	}
	probed := 0
	for _, portal := range st.portals {
		if probed >= maxPortalPages {
			break
		}
		key, err := urlutil.Canonicalize(portal.URL)
		if err != nil {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		page, err := o.fetchPage(ctx, st, portal.URL)
		if err != nil {
			o.logger.Debug("portal fetch failed",
				zap.String("url", portal.URL), zap.Error(err))
			continue
		}
		probed++
		o.archivePage(ctx, page)
		o.cachePage(ctx, page, 0)
		o.mergeDetection(st, o.deps.Detector.Detect(ctx, portal.URL, page.Body))
	}

	if len(st.res.Forms) > 0 {
		st.addSource(SourceForm)
	}
	return nil
}

func (o *Orchestrator) mergeDetection(st *runState, det *detect.Result) {
	if det == nil {
		return
	}
	st.res.Forms = permits.DedupeForms(append(st.res.Forms, det.Forms...))
	st.res.Systems = dedupeSystems(append(st.res.Systems, det.Systems...))
}

// dedupeSystems collapses systems sharing a vendor, keeping the first.
func dedupeSystems(systems []permits.DetectedSystem) []permits.DetectedSystem {
	if len(systems) == 0 {
		return systems
	}
	seen := make(map[string]struct{}, len(systems))
	out := systems[:0:0]
	for _, s := range systems {
		if _, dup := seen[s.Vendor]; dup {
			continue
		}
		seen[s.Vendor] = struct{}{}
		out = append(out, s)
	}
	return out
}

// documentsPhase fetches and analyzes downloadable form documents. The
// bound caps transfer volume and understanding cost per acquisition.
func (o *Orchestrator) documentsPhase(ctx context.Context, st *runState) error {
	docs := documentForms(st.res.Forms, st.opts.MaxDocuments)
	if len(docs) == 0 {
		return errSkipPhase
	}
	analyzed := 0
	for _, form := range docs {
		page, err := o.fetchPage(ctx, st, form.URL)
		if err != nil {
			o.logger.Debug("document fetch failed",
				zap.String("url", form.URL), zap.Error(err))
			continue
		}
		analyzed++
		o.archivePage(ctx, page)
		st.addSource(SourcePDF)

		if !isHTMLPayload(page) {
			o.cachePage(ctx, page, 0)
			continue
		}
		srcURL := pageURLOf(page)
		content, err := o.deps.Extractor.Extract(srcURL, page.Body)
		if err != nil {
			o.cachePage(ctx, page, 0)
			continue
		}
		o.mergeHeuristics(st, content)
		quality := content.Quality()
		if quality > st.heuristicQuality {
			st.heuristicQuality = quality
		}
		o.cachePage(ctx, page, quality)
		o.understandText(ctx, st, content.Text, srcURL, page.Body)
	}
	if analyzed == 0 {
		return fmt.Errorf("all %d documents failed to fetch", len(docs))
	}
	return nil
}

// documentForms picks the downloadable forms worth analyzing, detection
// order first, up to the bound.
func documentForms(forms []permits.PermitForm, limit int) []permits.PermitForm {
	var docs []permits.PermitForm
	for _, f := range forms {
		if f.URL == "" || f.FileType == permits.FileOnline {
			continue
		}
		docs = append(docs, f)
		if len(docs) == limit {
			break
		}
	}
	return docs
}

// isHTMLPayload reports whether a fetched document can go through the HTML
// extractor rather than being kept as an opaque binary.
func isHTMLPayload(page fetch.Page) bool {
	if page.Headers != nil {
		ct := strings.ToLower(page.Headers.Get("Content-Type"))
		if strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml") {
			return true
		}
		if ct != "" {
			return false
		}
	}
	head := bytes.ToLower(bytes.TrimSpace(page.Body))
	if len(head) > 256 {
		head = head[:256]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.Contains(head, []byte("<html"))
}

// flowsPhase walks discovered application entry points looking for
// multi-step wizards.
func (o *Orchestrator) flowsPhase(ctx context.Context, st *runState) error {
	candidates := flowCandidates(st)
	if len(candidates) == 0 {
		return errSkipPhase
	}
	for _, entry := range candidates {
		flow, ok := o.deps.Detector.MapFlow(ctx, entry)
		if !ok {
			continue
		}
		st.res.Flows = append(st.res.Flows, *flow)
	}
	if len(st.res.Flows) > 0 {
		st.addSource(SourceForm)
	}
	return nil
}

// flowCandidates assembles online application entry points: portal and
// application pages first, then online form links, deduped and bounded.
func flowCandidates(st *runState) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		if raw == "" || len(out) >= st.opts.MaxFlows {
			return
		}
		key, err := urlutil.Canonicalize(raw)
		if err != nil {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, raw)
	}
	for _, p := range st.portals {
		if p.Type == discover.PortalOnline || p.Type == discover.PortalApplication {
			add(p.URL)
		}
	}
	for _, f := range st.res.Forms {
		if f.FileType == permits.FileOnline {
			add(f.URL)
		}
	}
	return out
}

// externalPhase probes detected vendor systems for additional forms. Best
// effort and tightly capped: vendor portals are slow and rate limited.
func (o *Orchestrator) externalPhase(ctx context.Context, st *runState) error {
	systems := st.res.Systems
	if len(systems) == 0 {
		return errSkipPhase
	}
	if len(systems) > st.opts.MaxExternalProbes {
		systems = systems[:st.opts.MaxExternalProbes]
	}
	for _, sys := range systems {
		if sys.URL == "" {
			continue
		}
		page, err := o.fetchPage(ctx, st, sys.URL)
		if err != nil {
			o.logger.Debug("system probe failed",
				zap.String("vendor", sys.Vendor),
				zap.String("url", sys.URL),
				zap.Error(err))
			continue
		}
		o.archivePage(ctx, page)
		o.cachePage(ctx, page, 0)
		det := o.deps.Detector.Detect(ctx, sys.URL, page.Body)
		if det == nil || len(det.Forms) == 0 {
			continue
		}
		st.res.Forms = permits.DedupeForms(append(st.res.Forms, det.Forms...))
		st.addSource(SourceAPI)
	}
	return nil
}

// validatePhase asks the understanding service to cross-reference the
// accumulated result. An absent service means heuristic-only mode, not
// failure.
func (o *Orchestrator) validatePhase(ctx context.Context, st *runState) error {
	if o.deps.Understander == nil {
		return errSkipPhase
	}
	v, err := o.deps.Understander.CrossReference(ctx, st.res)
	if err != nil {
		return fmt.Errorf("cross reference: %w", err)
	}
	if v == nil {
		return errSkipPhase
	}
	st.validation = v
	if len(v.Issues) > 0 {
		o.logger.Info("validator raised issues",
			zap.Float64("validator_confidence", v.Confidence),
			zap.Strings("issues", v.Issues))
	}
	return nil
}

// understandText runs the text-understanding service over one page's text
// and merges its output under the heuristic-wins rules. Results are cached
// by (URL, checksum) so unchanged pages skip the paid call.
func (o *Orchestrator) understandText(ctx context.Context, st *runState, text, srcURL string, body []byte) {
	if o.deps.Understander == nil || strings.TrimSpace(text) == "" {
		return
	}
	u := o.cachedUnderstanding(ctx, st, srcURL, body)
	if u == nil {
		fresh, err := o.deps.Understander.ExtractPermitData(ctx, text, srcURL)
		if err != nil {
			o.logger.Warn("text understanding failed",
				zap.String("url", srcURL), zap.Error(err))
			return
		}
		if fresh == nil {
			return
		}
		o.storeUnderstanding(ctx, srcURL, body, fresh)
		u = fresh
	}
	o.mergeUnderstanding(st, u)
}

// mergeUnderstanding applies the service-output merge rules: an external fee
// is dropped only when a heuristic fee of the same type sits within a cent,
// contact fields fill absent values only, and requirements dedupe by
// bidirectional containment.
func (o *Orchestrator) mergeUnderstanding(st *runState, u *understand.Understanding) {
	res := st.res
	res.Permits = append(res.Permits, u.Permits...)
	res.Forms = permits.DedupeForms(append(res.Forms, u.Forms...))
	res.Fees = permits.MergeFees(res.Fees, u.Fees)
	res.Contact = permits.MergeContacts(res.Contact, u.Contact)
	res.Requirements = permits.MergeRequirements(res.Requirements, u.Requirements)
	res.ProcessingTimes = permits.MergeProcessingTimes(res.ProcessingTimes, u.ProcessingTimes)
	res.AIParsed = true
	st.aiQuality = append(st.aiQuality, u.Quality)
}

// cachedPage is the fetch-tier cache payload.
type cachedPage struct {
	URL       string    `json:"url"`
	FinalURL  string    `json:"final_url,omitempty"`
	Status    int       `json:"status"`
	Body      []byte    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// fetchPage serves a page from the fetch cache when possible and goes to
// the network otherwise. Cache reads honor BypassCache; writes happen in
// cachePage once quality is known.
func (o *Orchestrator) fetchPage(ctx context.Context, st *runState, rawURL string) (fetch.Page, error) {
	if o.deps.Cache != nil && !st.opts.BypassCache {
		if key, err := urlutil.Canonicalize(rawURL); err == nil {
			payload, ok, err := o.deps.Cache.Get(ctx, cache.FetchKey(key))
			if err != nil {
				o.logger.Debug("fetch cache read failed",
					zap.String("url", rawURL), zap.Error(err))
			} else if ok {
				var cp cachedPage
				if err := json.Unmarshal(payload, &cp); err == nil {
					return fetch.Page{
						URL:        cp.URL,
						FinalURL:   cp.FinalURL,
						StatusCode: cp.Status,
						Body:       cp.Body,
						FetchedAt:  cp.FetchedAt,
					}, nil
				}
			}
		}
	}
	return o.deps.Getter.Get(ctx, rawURL)
}

// cachePage stores a fetched page with a TTL derived from its extraction
// quality and host class.
func (o *Orchestrator) cachePage(ctx context.Context, page fetch.Page, quality float64) {
	if o.deps.Cache == nil {
		return
	}
	key, err := urlutil.Canonicalize(page.URL)
	if err != nil {
		return
	}
	payload, err := json.Marshal(cachedPage{
		URL:       page.URL,
		FinalURL:  page.FinalURL,
		Status:    page.StatusCode,
		Body:      page.Body,
		FetchedAt: page.FetchedAt,
	})
	if err != nil {
		return
	}
	govHost := urlutil.IsGovHost(urlutil.Host(page.URL))
	if err := o.deps.Cache.Set(ctx, cache.FetchKey(key), payload, quality, govHost); err != nil {
		o.logger.Debug("fetch cache write failed",
			zap.String("url", page.URL), zap.Error(err))
	}
}

func (o *Orchestrator) cachedUnderstanding(ctx context.Context, st *runState, srcURL string, body []byte) *understand.Understanding {
	if o.deps.Cache == nil || st.opts.BypassCache {
		return nil
	}
	key, err := urlutil.Canonicalize(srcURL)
	if err != nil {
		return nil
	}
	payload, ok, err := o.deps.Cache.Get(ctx, cache.UnderstandingKey(key, cache.Checksum(body)))
	if err != nil || !ok {
		return nil
	}
	var u understand.Understanding
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil
	}
	return &u
}

func (o *Orchestrator) storeUnderstanding(ctx context.Context, srcURL string, body []byte, u *understand.Understanding) {
	if o.deps.Cache == nil {
		return
	}
	key, err := urlutil.Canonicalize(srcURL)
	if err != nil {
		return
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return
	}
	govHost := urlutil.IsGovHost(urlutil.Host(srcURL))
	if err := o.deps.Cache.Set(ctx, cache.UnderstandingKey(key, cache.Checksum(body)), payload, u.Quality, govHost); err != nil {
		o.logger.Debug("understanding cache write failed",
			zap.String("url", srcURL), zap.Error(err))
	}
}

// archivePage snapshots one fetched page. A nil archiver swallows the call.
func (o *Orchestrator) archivePage(ctx context.Context, page fetch.Page) {
	contentType := ""
	if page.Headers != nil {
		contentType = page.Headers.Get("Content-Type")
	}
	fetchedAt := page.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = o.deps.Clock.Now()
	}
	if _, err := o.deps.Archiver.Archive(ctx, pageURLOf(page), contentType, fetchedAt, page.Body); err != nil {
		o.logger.Debug("page archive failed",
			zap.String("url", page.URL), zap.Error(err))
	}
}

func pageURLOf(page fetch.Page) string {
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return page.URL
}
