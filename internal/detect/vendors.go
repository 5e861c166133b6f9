package detect

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/urlutil"
)

// vendorConfig describes one known permitting platform. The registry is a
// closed set: recognition happens only through this table, and every entry
// extracts forms through the same selector mechanism.
type vendorConfig struct {
	name        string
	hostMarkers []string // substrings matched against hosts
	pageMarkers []string // lowercase substrings matched against page bodies
	selectors   []string // anchors treated as application entry points
	endpoints   []string // auxiliary paths worth a tolerant probe

	// trusted vendors skip the vocabulary gate: their selectors are the
	// signal. The generic catch-all keeps the gate.
	trusted bool
}

var vendorRegistry = []*vendorConfig{
	{
		name:        "accela",
		hostMarkers: []string{"accela.com", "aca-prod", "citizenaccess"},
		pageMarkers: []string{"accela citizen access", "aca_configuration"},
		selectors:   []string{`a[href*="CapHome"]`, `a[href*="CitizenAccess"]`},
		endpoints:   []string{"/CitizenAccess/Welcome.aspx"},
		trusted:     true,
	},
	{
		name:        "viewpoint",
		hostMarkers: []string{"viewpointcloud.com"},
		pageMarkers: []string{"viewpoint cloud", "viewpointcloud"},
		selectors:   []string{`a[href*="viewpointcloud"]`},
		endpoints:   []string{"/api/v2/record_types"},
		trusted:     true,
	},
	{
		name:        "tyler-energov",
		hostMarkers: []string{"energov", "tylerhost"},
		pageMarkers: []string{"energov", "tyler technologies"},
		selectors:   []string{`a[href*="EnerGov"]`, `a[href*="SelfService"]`},
		endpoints:   []string{"/apps/selfservice"},
		trusted:     true,
	},
	{
		name:        "citizenserve",
		hostMarkers: []string{"citizenserve.com"},
		pageMarkers: []string{"citizenserve"},
		selectors:   []string{`a[href*="citizenserve"]`},
		endpoints:   []string{"/Portal"},
		trusted:     true,
	},
	{
		name:        "etrakit",
		hostMarkers: []string{"etrakit"},
		pageMarkers: []string{"etrakit"},
		selectors:   []string{`a[href*="etrakit"]`, `a[href*="eTRAKiT"]`},
		endpoints:   []string{"/etrakit/Search/permit.aspx"},
		trusted:     true,
	},
	{
		name:        "opengov",
		hostMarkers: []string{"opengov.com"},
		pageMarkers: []string{"opengov"},
		selectors:   []string{`a[href*="opengov"]`},
		trusted:     true,
	},
}

// genericPortal is applied to every page regardless of vendor recognition,
// as a catch-all for in-house portals.
var genericPortal = &vendorConfig{
	name: "generic-portal",
	selectors: []string{
		`a[href*="apply"]`,
		`a[href*="application"]`,
		`a[href*="portal"]`,
		`a[href*="online-services"]`,
		`a[href*="onlineservices"]`,
		`a[href*="eservices"]`,
	},
}

func matchVendorHost(host string) *vendorConfig {
	for _, v := range vendorRegistry {
		for _, marker := range v.hostMarkers {
			if strings.Contains(host, marker) {
				return v
			}
		}
	}
	return nil
}

func matchVendorMarkers(body []byte) *vendorConfig {
	lower := bytes.ToLower(body)
	for _, v := range vendorRegistry {
		for _, marker := range v.pageMarkers {
			if bytes.Contains(lower, []byte(marker)) {
				return v
			}
		}
	}
	return nil
}

// recognizeVendors reports the vendor whose selectors should drive this
// page, plus every vendor-hosted portal the page points at. Systems dedup by
// vendor with the most precise source winning: the page's own host, then
// outbound links, then body markers (whose hits often just restate a link).
func recognizeVendors(doc *goquery.Document, pageURL string, body []byte) (*vendorConfig, []permits.DetectedSystem) {
	var systems []permits.DetectedSystem
	seen := make(map[string]struct{})
	add := func(v *vendorConfig, u, source string) {
		if _, dup := seen[v.name]; dup {
			return
		}
		seen[v.name] = struct{}{}
		systems = append(systems, permits.DetectedSystem{Vendor: v.name, URL: u, Source: source})
	}

	hostVendor := matchVendorHost(urlutil.Host(pageURL))
	if hostVendor != nil {
		add(hostVendor, pageURL, "page")
	}

	if base, err := url.Parse(pageURL); err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			abs := resolveRef(base, sel.AttrOr("href", ""))
			if abs == "" {
				return
			}
			if v := matchVendorHost(urlutil.Host(abs)); v != nil {
				add(v, abs, "link")
			}
		})
	}

	current := hostVendor
	if current == nil {
		if current = matchVendorMarkers(body); current != nil {
			add(current, pageURL, "marker")
		}
	}
	return current, systems
}

// extractForms applies the vendor's selector set to one page.
func (v *vendorConfig) extractForms(doc *goquery.Document, pageURL string) []permits.PermitForm {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var forms []permits.PermitForm
	for _, selector := range v.selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			abs := resolveRef(base, href)
			if abs == "" {
				return
			}
			name := collapseSpace(sel.Text())
			if name == "" {
				name = nameFromPath(abs)
			}
			if name == "" {
				return
			}
			if !v.trusted && !acceptCandidate(abs, base, name) {
				return
			}
			forms = append(forms, permits.PermitForm{
				Name:     name,
				URL:      abs,
				FileType: permits.InferFileType(abs),
				Category: categoryOf(name),
			})
		})
	}
	return forms
}

// vendorEndpoints resolves a recognized vendor's auxiliary API paths against
// the page's origin.
func vendorEndpoints(v *vendorConfig, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	for _, endpoint := range v.endpoints {
		ref, err := url.Parse(endpoint)
		if err != nil {
			continue
		}
		out = append(out, base.ResolveReference(ref).String())
	}
	return out
}
