// Package pipeline coordinates one acquisition request end to end: resolve
// the jurisdiction's site, pull its pages, detect forms and application
// wizards, analyze documents, probe vendor systems, cross-reference the
// accumulated data, and score the result. Phases run strictly in order and
// each is independently skippable: a failed phase is logged and the pipeline
// moves on, so every structurally valid request yields a result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/archive"
	"github.com/mrmoe28/permitscout/internal/cache"
	"github.com/mrmoe28/permitscout/internal/clock/system"
	"github.com/mrmoe28/permitscout/internal/detect"
	"github.com/mrmoe28/permitscout/internal/discover"
	"github.com/mrmoe28/permitscout/internal/extract"
	"github.com/mrmoe28/permitscout/internal/fetch"
	"github.com/mrmoe28/permitscout/internal/geo"
	"github.com/mrmoe28/permitscout/internal/id/uuid"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/telemetry"
	"github.com/mrmoe28/permitscout/internal/understand"
)

// Phase names, used as telemetry labels and methodology technique entries.
const (
	phaseFetch     = "basic_fetch"
	phaseDetect    = "form_detection"
	phaseDocuments = "document_analysis"
	phaseFlows     = "flow_mapping"
	phaseExternal  = "external_systems"
	phaseValidate  = "cross_reference"
	phaseScore     = "confidence_scoring"
)

// Source type labels. Each distinct type present on a result contributes one
// scoring step.
const (
	SourceWebsite = "website"
	SourcePDF     = "pdf"
	SourceAPI     = "api"
	SourceForm    = "form"
)

// errSkipPhase marks a phase that had nothing to do. Skips are recorded in
// telemetry but are neither techniques nor failures.
var errSkipPhase = errors.New("phase skipped")

// Getter fetches pages through the polite transport. *fetch.Client
// satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (fetch.Page, error)
}

// Extractor lifts structured content out of fetched HTML.
// *extract.Extractor satisfies it.
type Extractor interface {
	Extract(srcURL string, body []byte) (*extract.Content, error)
}

// Detector finds forms, vendor systems, and application wizards.
// *detect.Engine satisfies it.
type Detector interface {
	Detect(ctx context.Context, pageURL string, body []byte) *detect.Result
	MapFlow(ctx context.Context, startURL string) (*permits.MappedFlow, bool)
}

// Resolver locates a jurisdiction's website and its permit portals.
// *discover.Discoverer satisfies it.
type Resolver interface {
	ResolveWebsite(ctx context.Context, j *permits.Jurisdiction) (discover.Validated, bool)
	DiscoverPortals(ctx context.Context, baseURL string) []discover.Portal
}

// Understander is the text-understanding service. *understand.Client
// satisfies it.
type Understander interface {
	ExtractPermitData(ctx context.Context, text, sourceURL string) (*understand.Understanding, error)
	CrossReference(ctx context.Context, result *permits.AcquisitionResult) (*understand.Validation, error)
}

// IDGenerator mints result identifiers. *uuid.Generator satisfies it.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts wall-clock time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Deps aggregates the orchestrator's collaborators. Getter, Extractor,
// Detector, and Resolver are required; every other collaborator degrades to
// a documented fallback when nil.
type Deps struct {
	Getter    Getter
	Extractor Extractor
	Detector  Detector
	Resolver  Resolver

	Understander Understander      // nil: heuristic-only mode
	Geocoder     geo.Geocoder      // nil: addresses pass through unverified
	Places       geo.PlaceFinder   // nil: no office-lookup seeding
	Cache        cache.Store       // nil: every fetch goes to the network
	Archiver     *archive.Archiver // nil: page snapshots disabled
	IDs          IDGenerator       // nil: uuid v7
	Clock        Clock             // nil: system clock
}

// Config bounds the paid and slow work one acquisition may do.
type Config struct {
	MaxDocuments      int
	MaxFlows          int
	MaxExternalProbes int
	Weights           Weights
}

func (c Config) withDefaults() Config {
	if c.MaxDocuments <= 0 {
		c.MaxDocuments = 5
	}
	if c.MaxFlows <= 0 {
		c.MaxFlows = 3
	}
	if c.MaxExternalProbes <= 0 {
		c.MaxExternalProbes = 2
	}
	c.Weights = c.Weights.withDefaults()
	return c
}

// Options tune a single Acquire call. Zero values inherit the orchestrator
// configuration; the merge is explicit so callers can see which knob wins.
type Options struct {
	MaxDocuments      int
	MaxFlows          int
	MaxExternalProbes int

	// BypassCache skips cache reads for this call. Fresh results are still
	// written back.
	BypassCache bool
}

func (o Options) merged(cfg Config) Options {
	if o.MaxDocuments <= 0 {
		o.MaxDocuments = cfg.MaxDocuments
	}
	if o.MaxFlows <= 0 {
		o.MaxFlows = cfg.MaxFlows
	}
	if o.MaxExternalProbes <= 0 {
		o.MaxExternalProbes = cfg.MaxExternalProbes
	}
	return o
}

// Orchestrator drives acquisition requests through the pipeline phases.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs an Orchestrator. Missing required collaborators fail fast
// so misconfiguration surfaces at startup, not mid-acquisition.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Getter == nil {
		return nil, errors.New("pipeline: getter is required")
	}
	if deps.Extractor == nil {
		return nil, errors.New("pipeline: extractor is required")
	}
	if deps.Detector == nil {
		return nil, errors.New("pipeline: detector is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("pipeline: resolver is required")
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg.withDefaults(), logger: logger}, nil
}

// runState carries everything one Acquire call accumulates across phases.
type runState struct {
	res  *permits.AcquisitionResult
	opts Options
	addr *permits.Address

	pages      []pageData
	portals    []discover.Portal
	rawBody    []byte
	validation *understand.Validation

	heuristicQuality float64
	aiQuality        []float64

	sourceSet map[string]struct{}
}

// pageData pairs a fetched page with its heuristic extraction.
type pageData struct {
	page    fetch.Page
	content *extract.Content
}

func (st *runState) addSource(name string) {
	if _, dup := st.sourceSet[name]; dup {
		return
	}
	st.sourceSet[name] = struct{}{}
	st.res.Sources = append(st.res.Sources, name)
}

func (st *runState) technique(name string) {
	st.res.Methodology.Techniques = appendUnique(st.res.Methodology.Techniques, name)
}

func (st *runState) fallbackUsed(name string) {
	st.res.Methodology.Fallbacks = appendUnique(st.res.Methodology.Fallbacks, name)
}

func appendUnique(list []string, entry string) []string {
	for _, have := range list {
		if have == entry {
			return list
		}
	}
	return append(list, entry)
}

// Acquire runs the full pipeline for one jurisdiction. The address is
// optional location context. An error is returned only for structurally
// invalid input; every operational failure is contained inside a phase.
func (o *Orchestrator) Acquire(ctx context.Context, j *permits.Jurisdiction, addr *permits.Address, opts Options) (*permits.AcquisitionResult, error) {
	if err := validateInput(j); err != nil {
		return nil, err
	}
	opts = opts.merged(o.cfg)

	jc := *j
	res := &permits.AcquisitionResult{
		Jurisdiction: &jc,
		AcquiredAt:   o.deps.Clock.Now(),
	}
	if id, err := o.deps.IDs.NewID(); err == nil {
		res.ID = id
	} else {
		o.logger.Warn("id generation failed", zap.Error(err))
	}

	st := &runState{res: res, opts: opts, sourceSet: make(map[string]struct{})}
	log := o.logger.With(
		zap.String("acquisition_id", res.ID),
		zap.String("jurisdiction", jc.Name))
	log.Info("acquisition started", zap.String("website", jc.Website))

	o.prepare(ctx, st, addr, log)

	o.runPhase(st, log, phaseFetch, func() error { return o.fetchPhase(ctx, st) })
	o.runPhase(st, log, phaseDetect, func() error { return o.detectPhase(ctx, st) })
	o.runPhase(st, log, phaseDocuments, func() error { return o.documentsPhase(ctx, st) })
	o.runPhase(st, log, phaseFlows, func() error { return o.flowsPhase(ctx, st) })
	o.runPhase(st, log, phaseExternal, func() error { return o.externalPhase(ctx, st) })
	o.runPhase(st, log, phaseValidate, func() error { return o.validatePhase(ctx, st) })
	o.runPhase(st, log, phaseScore, func() error { o.scorePhase(st); return nil })

	outcome := "ok"
	if resultEmpty(res) {
		o.fallback(st, log)
		outcome = "fallback"
	}
	jc.LastUpdated = res.AcquiredAt
	telemetry.ObserveAcquisition(outcome)

	log.Info("acquisition finished",
		zap.Float64("confidence", res.Confidence),
		zap.Float64("data_quality", res.DataQuality),
		zap.Int("permits", len(res.Permits)),
		zap.Int("forms", len(res.Forms)),
		zap.Int("fees", len(res.Fees)),
		zap.Int("flows", len(res.Flows)),
		zap.Strings("sources", res.Sources))
	return res, nil
}

func validateInput(j *permits.Jurisdiction) error {
	if j == nil {
		return errors.New("pipeline: jurisdiction is required")
	}
	if strings.TrimSpace(j.Name) == "" && strings.TrimSpace(j.Website) == "" {
		return errors.New("pipeline: jurisdiction needs a name or a website")
	}
	if j.Website != "" {
		if _, err := url.ParseRequestURI(j.Website); err != nil {
			return fmt.Errorf("pipeline: invalid website %q: %w", j.Website, err)
		}
	}
	if j.PermitURL != "" {
		if _, err := url.ParseRequestURI(j.PermitURL); err != nil {
			return fmt.Errorf("pipeline: invalid permit url %q: %w", j.PermitURL, err)
		}
	}
	return nil
}

// prepare enriches the address and resolves the website before the phases
// run. Lookup failures leave the inputs untouched.
func (o *Orchestrator) prepare(ctx context.Context, st *runState, addr *permits.Address, log *zap.Logger) {
	jc := st.res.Jurisdiction
	if addr != nil {
		resolved := *addr
		if o.deps.Geocoder != nil {
			if enriched, err := o.deps.Geocoder.Geocode(ctx, *addr); err != nil {
				log.Warn("geocoding failed", zap.Error(err))
			} else {
				resolved = *enriched
				st.technique("geocoding")
			}
		}
		if jc.Address == (permits.Address{}) {
			jc.Address = resolved
		}
		st.addr = &resolved
	}

	if jc.Website == "" {
		if v, ok := o.deps.Resolver.ResolveWebsite(ctx, jc); ok {
			jc.Website = v.URL
			st.technique("website_discovery")
		}
	}
	if jc.Website == "" && o.deps.Places != nil && st.addr != nil {
		offices, err := o.deps.Places.NearbyOffices(ctx, *st.addr)
		if err != nil {
			log.Warn("office lookup failed", zap.Error(err))
			return
		}
		for _, office := range offices {
			if office.Website == "" {
				continue
			}
			jc.Website = office.Website
			st.fallbackUsed("office_lookup")
			log.Info("seeded website from nearby office",
				zap.String("office", office.Name),
				zap.String("website", office.Website))
			break
		}
	}
}

// runPhase times one phase and folds its outcome into telemetry and the
// methodology trace. Failures never escape.
func (o *Orchestrator) runPhase(st *runState, log *zap.Logger, name string, fn func() error) {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, errSkipPhase):
		telemetry.ObservePhase(name, "skipped", elapsed)
		log.Debug("phase skipped", zap.String("phase", name))
	case err != nil:
		telemetry.ObservePhase(name, "failed", elapsed)
		log.Warn("phase failed",
			zap.String("phase", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	default:
		telemetry.ObservePhase(name, "ok", elapsed)
		st.technique(name)
		log.Debug("phase complete",
			zap.String("phase", name),
			zap.Duration("elapsed", elapsed))
	}
}

// scorePhase folds everything into the final confidence and quality scores.
func (o *Orchestrator) scorePhase(st *runState) {
	if !st.res.AIParsed {
		st.fallbackUsed("heuristic_only")
	}
	st.res.Confidence = o.cfg.Weights.Score(st.res, st.validation)
	st.res.DataQuality = dataQuality(st)
}

// dataQuality blends the best heuristic extraction quality with the model's
// self-reported qualities. With no model in play the heuristic value stands
// alone.
func dataQuality(st *runState) float64 {
	if len(st.aiQuality) == 0 {
		return clamp01(st.heuristicQuality)
	}
	var sum float64
	for _, q := range st.aiQuality {
		sum += q
	}
	avg := sum / float64(len(st.aiQuality))
	return clamp01((st.heuristicQuality + avg) / 2)
}

// fallback rescues a run that produced nothing: scan whatever raw page
// bytes were pulled for category names and report them at a fixed low
// confidence.
func (o *Orchestrator) fallback(st *runState, log *zap.Logger) {
	st.res.Permits = keywordScan(st.rawBody)
	st.res.Confidence = o.cfg.Weights.Fallback
	st.fallbackUsed("keyword_scan")
	log.Info("fallback keyword scan",
		zap.Int("categories", len(st.res.Permits)))
}

func resultEmpty(res *permits.AcquisitionResult) bool {
	return len(res.Permits) == 0 &&
		len(res.Forms) == 0 &&
		len(res.Fees) == 0 &&
		res.Contact == nil &&
		len(res.Requirements) == 0 &&
		len(res.ProcessingTimes) == 0 &&
		len(res.Flows) == 0
}
