// Package detect finds downloadable permit forms, online application entry
// points, vendor permitting portals, and multi-step application wizards in
// fetched pages. Every strategy is best-effort: a failing layer contributes
// zero candidates and never aborts the others.
package detect

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/fetch"
	"github.com/mrmoe28/permitscout/internal/permits"
)

// Getter fetches pages for endpoint probing and flow mapping. *fetch.Client
// satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (fetch.Page, error)
}

// Config bounds the engine's network-touching strategies.
type Config struct {
	MaxProbeEndpoints int
	MaxFlowSteps      int
}

func (c Config) withDefaults() Config {
	if c.MaxProbeEndpoints <= 0 {
		c.MaxProbeEndpoints = 5
	}
	if c.MaxFlowSteps <= 0 {
		c.MaxFlowSteps = 6
	}
	return c
}

// Result carries everything one detection pass found on a page.
type Result struct {
	Forms   []permits.PermitForm     `json:"forms,omitempty"`
	Systems []permits.DetectedSystem `json:"systems,omitempty"`
}

// Engine layers static DOM queries, the known-vendor registry, and dynamic
// endpoint probing over fetched pages.
type Engine struct {
	client Getter
	cfg    Config
	logger *zap.Logger
}

// NewEngine constructs an Engine. A nil client disables the strategies that
// need network access (endpoint probing, flow mapping).
func NewEngine(client Getter, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, cfg: cfg.withDefaults(), logger: logger}
}

// Detect runs every strategy against one fetched page body. Vendor selector
// hits are prepended so they win candidate dedup over the static layers.
func (e *Engine) Detect(ctx context.Context, pageURL string, body []byte) *Result {
	res := &Result{}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("unparseable page, skipping detection",
			zap.String("url", pageURL), zap.Error(err))
		return res
	}

	forms := staticForms(doc, pageURL)

	vendor, systems := recognizeVendors(doc, pageURL, body)
	res.Systems = systems
	if vendor != nil {
		forms = append(vendor.extractForms(doc, pageURL), forms...)
	}
	forms = append(forms, genericPortal.extractForms(doc, pageURL)...)

	if e.client != nil {
		endpoints := scriptEndpoints(doc, pageURL)
		if vendor != nil {
			endpoints = append(endpoints, vendorEndpoints(vendor, pageURL)...)
		}
		forms = append(forms, e.probeEndpoints(ctx, endpoints)...)
	}

	res.Forms = dedupeCandidates(forms)
	return res
}

// dedupeCandidates collapses (name, url) duplicates across strategies,
// keeping the first occurrence. The URL-only identity rule is applied when
// results merge downstream.
func dedupeCandidates(forms []permits.PermitForm) []permits.PermitForm {
	seen := make(map[string]struct{}, len(forms))
	out := make([]permits.PermitForm, 0, len(forms))
	for _, form := range forms {
		key := strings.ToLower(form.Name) + "\n" + form.URL
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, form)
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolveRef(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}
