package discover

import (
	"strings"
	"unicode"

	"github.com/mrmoe28/permitscout/internal/permits"
)

// nameAliases expands common place-name abbreviations in both directions so
// that, for example, "St. Louis" yields both st-louis.gov and saintlouis.gov.
var nameAliases = map[string][]string{
	"saint": {"st"},
	"st":    {"saint"},
	"fort":  {"ft"},
	"ft":    {"fort"},
	"mount": {"mt"},
	"mt":    {"mount"},
}

// Vendor-hosted portal domains, one pattern per platform that serves
// jurisdictions on its own subdomains.
var vendorHostPatterns = []string{
	"%s.viewpointcloud.com",
	"%s.workflow.opengov.com",
}

// Department subdomains probed against the plain .gov guess.
var departmentSubdomains = []string{"permits", "building"}

// Candidates generates the pre-validation URL set for a jurisdiction from its
// sanitized name, type, and state. Order carries no ranking meaning beyond
// first-accessible acceptance; duplicates are removed before validation.
func Candidates(j *permits.Jurisdiction) []string {
	words := sanitizeName(j.Name)
	if len(words) == 0 {
		return nil
	}
	state := strings.ToLower(strings.TrimSpace(j.Address.State))

	var domains []string
	for _, variant := range aliasVariants(words) {
		joined := strings.Join(variant, "")
		for _, name := range nameJoins(variant) {
			domains = append(domains,
				name+".gov",
				name+".org",
				name+".us",
			)
			if state != "" {
				domains = append(domains,
					name+"-"+state+".gov",
					name+state+".gov",
				)
			}
			for _, dept := range departmentSubdomains {
				domains = append(domains, dept+"."+name+".gov")
			}
		}

		switch j.Type {
		case permits.JurisdictionCity:
			domains = append(domains,
				"cityof"+joined+".gov",
				"cityof"+joined+".org",
			)
			if state != "" {
				domains = append(domains, "ci."+joined+"."+state+".us")
			}
		case permits.JurisdictionCounty:
			bare := strings.Join(trimCountyWord(variant), "")
			if bare != "" {
				domains = append(domains,
					bare+"county.gov",
					bare+"county.org",
				)
				if state != "" {
					domains = append(domains, "co."+bare+"."+state+".us")
				}
			}
		case permits.JurisdictionState:
			if state != "" {
				domains = append(domains, "state."+state+".us", state+".gov")
			}
		}

		for _, pattern := range vendorHostPatterns {
			domains = append(domains, strings.Replace(pattern, "%s", joined, 1))
		}
	}

	seen := make(map[string]struct{}, len(domains))
	urls := make([]string, 0, len(domains))
	for _, domain := range domains {
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		urls = append(urls, "https://"+domain)
	}
	return urls
}

// sanitizeName lowercases a jurisdiction name and splits it into words,
// dropping punctuation such as the period in "St. Louis".
func sanitizeName(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// aliasVariants expands every aliasable word in both directions, returning
// all combinations. The original word list is always first.
func aliasVariants(words []string) [][]string {
	variants := [][]string{words}
	for i, word := range words {
		aliases, ok := nameAliases[word]
		if !ok {
			continue
		}
		for _, existing := range variants {
			for _, alias := range aliases {
				next := make([]string, len(existing))
				copy(next, existing)
				next[i] = alias
				variants = append(variants, next)
			}
		}
	}
	return dedupeWordLists(variants)
}

// nameJoins renders one word list as joined, hyphenated, and underscored
// domain labels.
func nameJoins(words []string) []string {
	if len(words) == 1 {
		return []string{words[0]}
	}
	return []string{
		strings.Join(words, ""),
		strings.Join(words, "-"),
		strings.Join(words, "_"),
	}
}

func trimCountyWord(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "county" {
			continue
		}
		out = append(out, w)
	}
	return out
}

func dedupeWordLists(lists [][]string) [][]string {
	seen := make(map[string]struct{}, len(lists))
	out := lists[:0]
	for _, list := range lists {
		key := strings.Join(list, " ")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, list)
	}
	return out
}
