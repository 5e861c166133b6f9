package detect

import (
	"encoding/json"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/urlutil"
)

// permitVocabRe gates static candidates: a form is kept only when its name
// plus description mention permit work.
var permitVocabRe = regexp.MustCompile(`(?i)permit|application|apply|license|building|zoning|inspection|construction|demolition|contractor|variance|plan review|certificate of occupancy`)

// Layered DOM queries, highest-signal first. Dedup keeps the first
// occurrence, so earlier layers win.
const (
	fileLinkSelector = `a[href$=".pdf"], a[href$=".PDF"], a[href$=".doc"], a[href$=".docx"], a[href$=".xls"], a[href$=".xlsx"]`
	sectionSelector  = `section[class*="form"], section[class*="permit"], section[class*="document"], div[class*="form"], div[class*="permit"], div[class*="document"], div[class*="download"], div[id*="form"], div[id*="permit"], div[id*="document"], table[class*="form"], table[class*="permit"], ul[class*="form"], ul[class*="document"], ul[class*="download"]`
	navSelector      = `nav a[href], [role="navigation"] a[href], .menu a[href], .nav a[href]`
	proseSelector    = `p a[href], article a[href], main a[href], .content a[href]`
)

func staticForms(doc *goquery.Document, pageURL string) []permits.PermitForm {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var forms []permits.PermitForm
	forms = append(forms, anchorForms(doc.Find(fileLinkSelector), base)...)
	forms = append(forms, anchorForms(doc.Find(sectionSelector).Find("a[href]"), base)...)
	forms = append(forms, anchorForms(doc.Find(navSelector), base)...)
	forms = append(forms, anchorForms(doc.Find(proseSelector), base)...)
	forms = append(forms, metadataForms(doc, base)...)
	return forms
}

func anchorForms(anchors *goquery.Selection, base *url.URL) []permits.PermitForm {
	var forms []permits.PermitForm
	anchors.Each(func(_ int, sel *goquery.Selection) {
		if form, ok := formFromAnchor(sel, base); ok {
			forms = append(forms, form)
		}
	})
	return forms
}

func formFromAnchor(sel *goquery.Selection, base *url.URL) (permits.PermitForm, bool) {
	href, ok := sel.Attr("href")
	if !ok {
		return permits.PermitForm{}, false
	}
	abs := resolveRef(base, href)
	if abs == "" {
		return permits.PermitForm{}, false
	}
	name := collapseSpace(sel.Text())
	if name == "" {
		name = collapseSpace(sel.AttrOr("title", ""))
	}
	if name == "" {
		name = nameFromPath(abs)
	}
	if name == "" {
		return permits.PermitForm{}, false
	}
	desc := collapseSpace(sel.AttrOr("title", ""))
	if desc == name {
		desc = ""
	}
	if !acceptCandidate(abs, base, name+" "+desc) {
		return permits.PermitForm{}, false
	}
	form := permits.PermitForm{
		Name:        name,
		URL:         abs,
		FileType:    permits.InferFileType(abs),
		Description: desc,
		Category:    categoryOf(name),
	}
	return form, true
}

// acceptCandidate enforces the two acceptance gates: the resolved URL must
// stay on the page's site or a government-flavored domain, and the name plus
// description must mention permit work.
func acceptCandidate(abs string, base *url.URL, text string) bool {
	host := urlutil.Host(abs)
	if host == "" {
		return false
	}
	if !hostAcceptable(host, base.Hostname()) {
		return false
	}
	return permitVocabRe.MatchString(text)
}

func hostAcceptable(formHost, pageHost string) bool {
	if urlutil.SameSite(formHost, pageHost) {
		return true
	}
	if strings.HasSuffix(formHost, ".gov") || strings.HasSuffix(formHost, ".org") {
		return true
	}
	return strings.Contains(formHost, "city") || strings.Contains(formHost, "county")
}

func nameFromPath(abs string) string {
	u, err := url.Parse(abs)
	if err != nil {
		return ""
	}
	baseName := path.Base(u.Path)
	if baseName == "/" || baseName == "." {
		return ""
	}
	baseName = strings.TrimSuffix(baseName, path.Ext(baseName))
	baseName = strings.NewReplacer("-", " ", "_", " ").Replace(baseName)
	return collapseSpace(baseName)
}

func categoryOf(name string) string {
	if cat := permits.NormalizeCategory(name); cat != permits.CategoryOther {
		return string(cat)
	}
	return ""
}

// metadataForms is the structured-metadata layer: JSON-LD blocks, microdata
// items, and data-attribute annotated anchors.
func metadataForms(doc *goquery.Document, base *url.URL) []permits.PermitForm {
	var forms []permits.PermitForm
	forms = append(forms, jsonLDForms(doc, base)...)
	forms = append(forms, microdataForms(doc, base)...)
	forms = append(forms, dataAttrForms(doc, base)...)
	return forms
}

func jsonLDForms(doc *goquery.Document, base *url.URL) []permits.PermitForm {
	var forms []permits.PermitForm
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return
		}
		walkJSONLD(payload, func(name, rawURL string) {
			abs := resolveRef(base, rawURL)
			if abs == "" || !acceptCandidate(abs, base, name) {
				return
			}
			forms = append(forms, permits.PermitForm{
				Name:     name,
				URL:      abs,
				FileType: permits.InferFileType(abs),
				Category: categoryOf(name),
			})
		})
	})
	return forms
}

// walkJSONLD visits every object in the decoded tree that carries both a
// name and a url.
func walkJSONLD(node any, visit func(name, url string)) {
	switch v := node.(type) {
	case map[string]any:
		name, _ := v["name"].(string)
		rawURL, _ := v["url"].(string)
		if name != "" && rawURL != "" {
			visit(name, rawURL)
		}
		for _, child := range v {
			walkJSONLD(child, visit)
		}
	case []any:
		for _, child := range v {
			walkJSONLD(child, visit)
		}
	}
}

func microdataForms(doc *goquery.Document, base *url.URL) []permits.PermitForm {
	var forms []permits.PermitForm
	doc.Find("[itemscope]").Each(func(_ int, sel *goquery.Selection) {
		name := collapseSpace(sel.Find(`[itemprop="name"]`).First().Text())
		urlEl := sel.Find(`[itemprop="url"]`).First()
		href := urlEl.AttrOr("href", urlEl.AttrOr("content", ""))
		if name == "" || href == "" {
			return
		}
		abs := resolveRef(base, href)
		if abs == "" || !acceptCandidate(abs, base, name) {
			return
		}
		forms = append(forms, permits.PermitForm{
			Name:     name,
			URL:      abs,
			FileType: permits.InferFileType(abs),
			Category: categoryOf(name),
		})
	})
	return forms
}

func dataAttrForms(doc *goquery.Document, base *url.URL) []permits.PermitForm {
	var forms []permits.PermitForm
	doc.Find(`a[data-form], a[data-document], a[data-download], [data-form-url], [data-document-url]`).
		Each(func(_ int, sel *goquery.Selection) {
			href := sel.AttrOr("href",
				sel.AttrOr("data-form-url", sel.AttrOr("data-document-url", "")))
			if href == "" {
				return
			}
			name := collapseSpace(sel.Text())
			abs := resolveRef(base, href)
			if abs == "" {
				return
			}
			if name == "" {
				name = nameFromPath(abs)
			}
			if name == "" || !acceptCandidate(abs, base, name) {
				return
			}
			forms = append(forms, permits.PermitForm{
				Name:     name,
				URL:      abs,
				FileType: permits.InferFileType(abs),
				Category: categoryOf(name),
			})
		})
	return forms
}
