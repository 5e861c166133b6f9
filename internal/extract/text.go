package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mrmoe28/permitscout/internal/permits"
)

var (
	headingVocabRe   = regexp.MustCompile(`(?i)requirement|required|need|checklist|submittal|document`)
	processingTextRe = regexp.MustCompile(`(?i)processing\s+times?\s*[:\-]?\s*([0-9]+(?:\s*(?:-|to)\s*[0-9]+)?\s*(?:business\s+)?(?:day|week|month)s?)`)
)

// requirementsFrom collects requirement strings from requirement-typed
// tables and from lists that follow requirement-flavored headings.
func requirementsFrom(doc *goquery.Document, tables []permits.ExtractedTable) []string {
	var requirements []string

	for _, table := range tables {
		if table.Type != permits.TableRequirements {
			continue
		}
		for _, row := range table.Rows {
			if len(row) == 0 {
				continue
			}
			requirements = permits.MergeRequirements(requirements, []string{strings.Join(compactRow(row), " - ")})
		}
	}

	doc.Find("h1, h2, h3, h4").Each(func(_ int, heading *goquery.Selection) {
		if !headingVocabRe.MatchString(heading.Text()) {
			return
		}
		list := heading.NextAllFiltered("ul, ol").First()
		if list.Length() == 0 {
			list = heading.Parent().Find("ul, ol").First()
		}
		list.Find("li").Each(func(_ int, item *goquery.Selection) {
			text := collapseWhitespace(item.Text())
			if text == "" {
				return
			}
			requirements = permits.MergeRequirements(requirements, []string{text})
		})
	})

	return requirements
}

func compactRow(row []string) []string {
	out := make([]string, 0, len(row))
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell != "" {
			out = append(out, cell)
		}
	}
	return out
}

// processingTimesFrom maps permit types to turnaround estimates, reading
// schedule tables first and falling back to prose mentions.
func processingTimesFrom(text string, tables []permits.ExtractedTable) map[string]string {
	times := make(map[string]string)

	for _, table := range tables {
		if table.Type != permits.TableSchedule {
			continue
		}
		typeCol, timeCol := scheduleColumns(table.Headers)
		if typeCol < 0 || timeCol < 0 {
			continue
		}
		for _, row := range table.Rows {
			if typeCol >= len(row) || timeCol >= len(row) {
				continue
			}
			permitType := strings.TrimSpace(row[typeCol])
			duration := strings.TrimSpace(row[timeCol])
			if permitType == "" || duration == "" {
				continue
			}
			times[permitType] = duration
		}
	}

	if m := processingTextRe.FindStringSubmatch(text); m != nil {
		if _, exists := times["general"]; !exists {
			times["general"] = collapseWhitespace(m[1])
		}
	}

	if len(times) == 0 {
		return nil
	}
	return times
}

func scheduleColumns(headers []string) (typeCol, timeCol int) {
	typeCol, timeCol = -1, -1
	for i, header := range headers {
		if timeCol == -1 && timeColRe.MatchString(header) {
			timeCol = i
			continue
		}
		if typeCol == -1 && feeTypeColRe.MatchString(header) {
			typeCol = i
		}
	}
	return typeCol, timeCol
}
