package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mrmoe28/permitscout/internal/permits"
)

var (
	phoneRe = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?([0-9]{3})\)?[-.\s]?([0-9]{3})[-.\s]?([0-9]{4})\b`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Case-sensitive on purpose: lowercase fee text like "per sq ft" must
	// not read as a street suffix.
	streetRe       = regexp.MustCompile(`\b\d{1,6}\s+[A-Z0-9][A-Za-z0-9'.\-]*(?:\s+[A-Z0-9][A-Za-z0-9'.\-]*)*\s+(?:Street|Avenue|Road|Boulevard|Drive|Lane|Court|Plaza|Parkway|Square|Way|St|Ave|Rd|Blvd|Dr|Ln|Ct|Pkwy|Sq)\b\.?`)
	cityStateZipRe = regexp.MustCompile(`([A-Za-z .'\-]+),\s*([A-Z]{2})\s+(\d{5}(?:-\d{4})?)`)
)

var rejectedEmailTokens = []string{"example", "noreply", "donotreply"}

func extractContact(doc *goquery.Document, text string) *permits.ContactInfo {
	contact := &permits.ContactInfo{
		Phone: firstPhone(text),
		Email: firstEmail(text),
	}
	contact.Address = extractAddress(doc, text)
	contact.Hours = extractHours(text)

	if contact.Phone == "" && contact.Email == "" && contact.Address == nil && len(contact.Hours) == 0 {
		return nil
	}
	return contact
}

// firstPhone returns the first phone match normalized to (NNN) NNN-NNNN.
func firstPhone(text string) string {
	m := phoneRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("(%s) %s-%s", m[1], m[2], m[3])
}

// firstEmail returns the first address that is not a placeholder or
// no-reply mailbox.
func firstEmail(text string) string {
	for _, candidate := range emailRe.FindAllString(text, -1) {
		lower := strings.ToLower(candidate)
		rejected := false
		for _, token := range rejectedEmailTokens {
			if strings.Contains(lower, token) {
				rejected = true
				break
			}
		}
		if !rejected {
			return candidate
		}
	}
	return ""
}

// extractAddress prefers semantic address containers, then falls back to a
// street-address scan over the whole document text.
func extractAddress(doc *goquery.Document, text string) *permits.Address {
	var fromContainer string
	doc.Find(`address, [class*="address"], [id*="address"], [itemprop="address"]`).
		EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			candidate := collapseWhitespace(sel.Text())
			if streetRe.MatchString(candidate) {
				fromContainer = candidate
				return false
			}
			return true
		})

	if fromContainer != "" {
		return parseAddressText(fromContainer)
	}
	if m := streetRe.FindStringIndex(text); m != nil {
		// Take some trailing context so city/state/zip after the street parse too.
		end := m[1] + 80
		if end > len(text) {
			end = len(text)
		}
		return parseAddressText(text[m[0]:end])
	}
	return nil
}

func parseAddressText(text string) *permits.Address {
	addr := &permits.Address{}
	if street := streetRe.FindString(text); street != "" {
		addr.Street = collapseWhitespace(street)
	}
	if m := cityStateZipRe.FindStringSubmatch(text); m != nil {
		addr.City = collapseWhitespace(m[1])
		addr.State = m[2]
		addr.Zip = m[3]
	}
	if addr.Street == "" && addr.Zip == "" {
		return nil
	}
	return addr
}

var weekdays = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

var dayHoursRes = buildDayHoursPatterns()

type dayPattern struct {
	day string
	re  *regexp.Regexp
}

func buildDayHoursPatterns() []dayPattern {
	patterns := make([]dayPattern, 0, len(weekdays))
	for _, day := range weekdays {
		// Matches e.g. "Monday: 8:00am - 5:00pm", "Mon 8am–4:30pm",
		// or "Monday: Closed".
		expr := `(?i)\b` + day[:3] + `(?:` + day[3:] + `)?\b[:\s]{0,5}` +
			`(closed|(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?\s*(?:-|–|to)\s*(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?)`
		patterns = append(patterns, dayPattern{day: day, re: regexp.MustCompile(expr)})
	}
	return patterns
}

// extractHours scans the page text for per-weekday opening windows and
// normalizes them to 24-hour HH:MM.
func extractHours(text string) permits.BusinessHours {
	hours := make(permits.BusinessHours)
	for _, p := range dayHoursRes {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if strings.EqualFold(m[1], "closed") {
			hours[p.day] = permits.DayHours{Closed: true}
			continue
		}
		open := to24Hour(m[2], m[3], m[4])
		closeT := to24Hour(m[5], m[6], m[7])
		if open == "" || closeT == "" {
			continue
		}
		hours[p.day] = permits.DayHours{Open: open, Close: closeT}
	}
	if len(hours) == 0 {
		return nil
	}
	return hours
}

func to24Hour(hourStr, minuteStr, meridiem string) string {
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour < 1 || hour > 12 {
		return ""
	}
	minute := 0
	if minuteStr != "" {
		minute, err = strconv.Atoi(minuteStr)
		if err != nil || minute > 59 {
			return ""
		}
	}
	switch strings.ToLower(meridiem) {
	case "p":
		if hour != 12 {
			hour += 12
		}
	case "a":
		if hour == 12 {
			hour = 0
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
