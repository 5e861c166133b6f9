package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/permits"
)

var (
	// Quoted same-origin paths under /api/ or /ajax/ inside script text.
	scriptPathRe = regexp.MustCompile(`["'](/(?:api|ajax)/[^"'\s<>]*)["']`)
	// fetch()/XHR/jQuery call targets.
	fetchCallRe = regexp.MustCompile(`(?:fetch|\$\.get|\$\.getJSON|\$\.ajax|axios\.get)\s*\(\s*["']([^"']+)["']`)
	// Only permit-flavored endpoints are worth a probe.
	endpointVocabRe = regexp.MustCompile(`(?i)permit|application|form|license`)
)

// scriptEndpoints lifts same-origin API-looking endpoints out of embedded
// script text.
func scriptEndpoints(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var endpoints []string
	add := func(raw string) {
		if !endpointVocabRe.MatchString(raw) {
			return
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if !strings.EqualFold(abs.Hostname(), base.Hostname()) {
			return
		}
		key := abs.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		endpoints = append(endpoints, key)
	}
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		for _, m := range scriptPathRe.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
		for _, m := range fetchCallRe.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	})
	return endpoints
}

// probeEndpoints issues tolerant GETs against candidate endpoints. Failed
// requests and unusable responses are skipped silently per endpoint.
func (e *Engine) probeEndpoints(ctx context.Context, endpoints []string) []permits.PermitForm {
	if len(endpoints) > e.cfg.MaxProbeEndpoints {
		endpoints = endpoints[:e.cfg.MaxProbeEndpoints]
	}
	var forms []permits.PermitForm
	for _, endpoint := range endpoints {
		page, err := e.client.Get(ctx, endpoint)
		if err != nil {
			e.logger.Debug("endpoint probe failed",
				zap.String("endpoint", endpoint), zap.Error(err))
			continue
		}
		found := formsFromAPIResponse(page.Body, endpoint)
		if len(found) == 0 {
			continue
		}
		e.logger.Debug("endpoint probe yielded forms",
			zap.String("endpoint", endpoint), zap.Int("count", len(found)))
		forms = append(forms, found...)
	}
	return forms
}

// apiFormObject is the only shape probed endpoints may contribute. Responses
// are parsed into it explicitly; fields that fail validation are discarded
// rather than trusted.
type apiFormObject struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	FormName    string `json:"formName"`
	URL         string `json:"url"`
	Link        string `json:"link"`
	Href        string `json:"href"`
	DownloadURL string `json:"downloadUrl"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Required    bool   `json:"required"`
}

func (o apiFormObject) displayName() string {
	for _, candidate := range []string{o.Name, o.Title, o.FormName} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (o apiFormObject) formURL() string {
	for _, candidate := range []string{o.URL, o.Link, o.Href, o.DownloadURL} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// formsFromAPIResponse parses a probe response into form candidates. JSON
// bodies may be a bare array or an object wrapping one under a conventional
// member name; HTML bodies get a file-link scan.
func formsFromAPIResponse(body []byte, endpoint string) []permits.PermitForm {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil
	}
	if trimmed[0] == '[' || trimmed[0] == '{' {
		return formsFromJSON(trimmed, base)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	return anchorForms(doc.Find(fileLinkSelector), base)
}

var wrapperKeys = []string{"forms", "results", "data", "items"}

func formsFromJSON(raw []byte, base *url.URL) []permits.PermitForm {
	var objects []apiFormObject
	if err := json.Unmarshal(raw, &objects); err != nil {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil
		}
		for _, key := range wrapperKeys {
			member, ok := wrapper[key]
			if !ok {
				continue
			}
			if json.Unmarshal(member, &objects) == nil && len(objects) > 0 {
				break
			}
		}
	}

	var forms []permits.PermitForm
	for _, obj := range objects {
		name, link := obj.displayName(), obj.formURL()
		if name == "" || link == "" {
			continue
		}
		ref, err := url.Parse(link)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		form := permits.PermitForm{
			Name:        name,
			URL:         abs.String(),
			FileType:    permits.InferFileType(abs.String()),
			IsRequired:  obj.Required,
			Description: obj.Description,
			Category:    categoryOf(obj.Category),
		}
		if form.Category == "" {
			form.Category = categoryOf(name)
		}
		forms = append(forms, form)
	}
	return forms
}
