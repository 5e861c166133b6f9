package detect

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/urlutil"
)

// Wizard indicators checked on the entry page before any recursion happens.
var stepIndicatorSelectors = []string{
	`[class*="step"]`,
	`[class*="wizard"]`,
	`[class*="progress"]`,
	`[data-step]`,
}

// MapFlow reconstructs a multi-step application wizard starting at startURL.
// It follows next/continue links (then submit-button form actions) up to the
// configured step bound, stopping at any previously visited URL. Flows with
// fewer than two steps are noise and reported as not found.
func (e *Engine) MapFlow(ctx context.Context, startURL string) (*permits.MappedFlow, bool) {
	if e.client == nil {
		return nil, false
	}
	visited := make(map[string]struct{})
	flow := &permits.MappedFlow{StartURL: startURL}
	current := startURL

	for len(flow.Steps) < e.cfg.MaxFlowSteps && current != "" {
		canon, err := urlutil.Canonicalize(current)
		if err != nil {
			break
		}
		if _, dup := visited[canon]; dup {
			break
		}
		visited[canon] = struct{}{}

		page, err := e.client.Get(ctx, current)
		if err != nil {
			e.logger.Debug("flow step fetch failed",
				zap.String("url", current), zap.Error(err))
			break
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			break
		}
		if len(flow.Steps) == 0 {
			if !hasStepIndicator(doc) {
				return nil, false
			}
			flow.Title = flowTitle(doc)
		}

		step := buildStep(len(flow.Steps)+1, current, doc)
		if base, err := url.Parse(current); err == nil {
			step.NextURL = nextStepURL(doc, base)
		}
		flow.Steps = append(flow.Steps, step)
		current = step.NextURL
	}

	if len(flow.Steps) < 2 {
		return nil, false
	}
	return flow, true
}

func hasStepIndicator(doc *goquery.Document) bool {
	for _, selector := range stepIndicatorSelectors {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

func flowTitle(doc *goquery.Document) string {
	if t := collapseSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return collapseSpace(doc.Find("h1").First().Text())
}

// nextStepURL resolves the link to the next wizard page: explicit
// next/continue anchors first, then the action of a form carrying a submit
// button.
func nextStepURL(doc *goquery.Document, base *url.URL) string {
	var next string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.ToLower(collapseSpace(sel.Text()))
		class := strings.ToLower(sel.AttrOr("class", ""))
		if !strings.Contains(text, "next") && !strings.Contains(text, "continue") &&
			!strings.Contains(class, "next") && !strings.Contains(class, "continue") {
			return true
		}
		if abs := resolveRef(base, sel.AttrOr("href", "")); abs != "" {
			next = abs
			return false
		}
		return true
	})
	if next != "" {
		return next
	}

	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		if form.Find(`button[type="submit"], input[type="submit"]`).Length() == 0 {
			return true
		}
		action := form.AttrOr("action", "")
		if action == "" {
			return true
		}
		if abs := resolveRef(base, action); abs != "" {
			next = abs
			return false
		}
		return true
	})
	return next
}

// buildStep records the fields, uploads, and validation hints on one page.
func buildStep(number int, pageURL string, doc *goquery.Document) permits.MappedStep {
	step := permits.MappedStep{Number: number, URL: pageURL, Title: stepTitle(doc)}
	seen := make(map[string]struct{})

	doc.Find("form input, form select, form textarea").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", sel.AttrOr("id", ""))
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}

		fieldType := strings.ToLower(goquery.NodeName(sel))
		if fieldType == "input" {
			fieldType = strings.ToLower(sel.AttrOr("type", "text"))
		}
		switch fieldType {
		case "hidden", "submit", "button", "image", "reset":
			return
		}

		required := fieldRequired(sel)
		seen[name] = struct{}{}

		if fieldType == "file" {
			upload := permits.FileUpload{Name: name, Required: required}
			for _, ext := range strings.Split(sel.AttrOr("accept", ""), ",") {
				if ext = strings.TrimSpace(ext); ext != "" {
					upload.Accepts = append(upload.Accepts, ext)
				}
			}
			step.Uploads = append(step.Uploads, upload)
			return
		}

		step.Fields = append(step.Fields, permits.StepField{
			Name:     name,
			Type:     fieldType,
			Required: required,
		})
		if pattern := sel.AttrOr("pattern", ""); pattern != "" {
			step.ValidationRules = append(step.ValidationRules, name+" must match "+pattern)
		}
	})
	return step
}

// fieldRequired honors both the required attribute and an enclosing
// .required container.
func fieldRequired(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("required"); ok {
		return true
	}
	return sel.Closest(".required").Length() > 0
}

func stepTitle(doc *goquery.Document) string {
	for _, selector := range []string{"legend", "h1", "h2"} {
		if t := collapseSpace(doc.Find(selector).First().Text()); t != "" {
			return t
		}
	}
	return ""
}
