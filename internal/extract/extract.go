// Package extract parses fetched permit pages into structured data: tables
// with fee schedules, contact details with business hours, requirement lists,
// and processing times. Every sub-extraction is independent and best-effort;
// one bad table never poisons the rest of the page.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/permits"
)

// Link is one outgoing anchor with its visible text.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// Content is everything lifted from a single page.
type Content struct {
	URL             string                   `json:"url"`
	Title           string                   `json:"title,omitempty"`
	Text            string                   `json:"text,omitempty"`
	Tables          []permits.ExtractedTable `json:"tables,omitempty"`
	Fees            []permits.PermitFee      `json:"fees,omitempty"`
	Contact         *permits.ContactInfo     `json:"contact,omitempty"`
	Requirements    []string                 `json:"requirements,omitempty"`
	ProcessingTimes map[string]string        `json:"processing_times,omitempty"`
	Links           []Link                   `json:"links,omitempty"`
}

// Quality scores how complete this page's extraction is, in [0,1].
func (c *Content) Quality() float64 {
	if c == nil {
		return 0
	}
	score := 0.0
	if c.Title != "" {
		score += 0.1
	}
	if len(c.Tables) > 0 {
		score += 0.15
	}
	if len(c.Fees) > 0 {
		score += 0.25
	}
	if c.Contact != nil && (c.Contact.Phone != "" || c.Contact.Email != "") {
		score += 0.2
	}
	if len(c.Requirements) > 0 {
		score += 0.2
	}
	if len(c.ProcessingTimes) > 0 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Extractor turns raw HTML into Content.
type Extractor struct {
	logger *zap.Logger
}

// New constructs an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses body and runs every sub-extraction. Only an unparseable
// document is an error; missing sections simply leave fields empty.
func (e *Extractor) Extract(srcURL string, body []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	content := &Content{URL: srcURL}
	content.Title = extractTitle(doc)
	content.Text = collapseWhitespace(doc.Find("body").Text())

	content.Tables = e.extractTables(doc)
	content.Fees = feesFromTables(content.Tables)
	content.Requirements = requirementsFrom(doc, content.Tables)
	content.ProcessingTimes = processingTimesFrom(content.Text, content.Tables)
	content.Contact = extractContact(doc, content.Text)
	content.Links = extractLinks(doc, srcURL)

	return content, nil
}

func extractTitle(doc *goquery.Document) string {
	title := collapseWhitespace(doc.Find("title").First().Text())
	if title != "" {
		return title
	}
	return collapseWhitespace(doc.Find("h1").First().Text())
}

func extractLinks(doc *goquery.Document, srcURL string) []Link {
	base, err := url.Parse(srcURL)
	if err != nil {
		base = nil
	}
	var links []Link
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs := resolveURL(base, href)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, Link{URL: abs, Text: collapseWhitespace(sel.Text())})
	})
	return links
}

func resolveURL(base *url.URL, href string) string {
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

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
