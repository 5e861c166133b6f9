package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mrmoe28/permitscout/internal/permits"
)

// Classification vocabularies. A table is typed by matching its header plus
// first-row text in fixed priority order: fees, then requirements, then
// schedule.
var (
	feeVocabRe         = regexp.MustCompile(`(?i)fee|cost|price|amount|charge|\$`)
	requirementVocabRe = regexp.MustCompile(`(?i)requirement|required|need|must|document|submittal|checklist`)
	scheduleVocabRe    = regexp.MustCompile(`(?i)schedule|hours|time|day|week|processing|turnaround`)

	feeTypeColRe   = regexp.MustCompile(`(?i)type|permit|description|item|service|category|name|work`)
	feeAmountColRe = regexp.MustCompile(`(?i)fee|cost|amount|price|charge|\$`)
	feeDescColRe   = regexp.MustCompile(`(?i)description|notes|details|conditions`)
	timeColRe      = regexp.MustCompile(`(?i)time|processing|duration|turnaround|timeline`)

	amountNumberRe = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
)

func (e *Extractor) extractTables(doc *goquery.Document) []permits.ExtractedTable {
	var tables []permits.ExtractedTable
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		table, ok := tableFromSelection(sel)
		if !ok {
			return
		}
		table.Type = classifyTable(table)
		tables = append(tables, table)
	})
	return tables
}

func tableFromSelection(sel *goquery.Selection) (permits.ExtractedTable, bool) {
	var allRows [][]string
	sel.Find("tr").Each(func(_ int, row *goquery.Selection) {
		// Nested tables contribute their own entry; skip their rows here.
		if row.ParentsFiltered("table").First().Length() > 0 &&
			!row.ParentsFiltered("table").First().IsSelection(sel) {
			return
		}
		var cells []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			if !cell.ParentsFiltered("table").First().IsSelection(sel) {
				return
			}
			cells = append(cells, collapseWhitespace(cell.Text()))
		})
		if len(cells) > 0 {
			allRows = append(allRows, cells)
		}
	})
	if len(allRows) == 0 {
		return permits.ExtractedTable{}, false
	}
	table := permits.ExtractedTable{Headers: allRows[0]}
	if len(allRows) > 1 {
		table.Rows = allRows[1:]
	}
	return table, true
}

func classifyTable(table permits.ExtractedTable) permits.TableType {
	sample := strings.Join(table.Headers, " ")
	if len(table.Rows) > 0 {
		sample += " " + strings.Join(table.Rows[0], " ")
	}
	switch {
	case feeVocabRe.MatchString(sample):
		return permits.TableFees
	case requirementVocabRe.MatchString(sample):
		return permits.TableRequirements
	case scheduleVocabRe.MatchString(sample):
		return permits.TableSchedule
	default:
		return permits.TableUnknown
	}
}

// feesFromTables walks every fee-typed table and parses its rows. A row
// contributes a fee only when both a type column and an amount column were
// located and the amount parses as a non-negative number.
func feesFromTables(tables []permits.ExtractedTable) []permits.PermitFee {
	var fees []permits.PermitFee
	for _, table := range tables {
		if table.Type != permits.TableFees {
			continue
		}
		typeCol, amountCol, descCol := feeColumns(table.Headers)
		if typeCol < 0 || amountCol < 0 {
			continue
		}
		for _, row := range table.Rows {
			fee, ok := feeFromRow(row, typeCol, amountCol, descCol)
			if !ok {
				continue
			}
			fees = append(fees, fee)
		}
	}
	return permits.DedupeFees(fees)
}

// feeColumns locates the type, amount, and optional description columns.
// Headers like "Fee Type" match both vocabularies, so amount prefers a
// header that is not also a type header before falling back.
func feeColumns(headers []string) (typeCol, amountCol, descCol int) {
	typeCol, amountCol, descCol = -1, -1, -1
	for i, h := range headers {
		if amountCol < 0 && feeAmountColRe.MatchString(h) && !feeTypeColRe.MatchString(h) {
			amountCol = i
		}
	}
	for i, h := range headers {
		if i != amountCol && feeTypeColRe.MatchString(h) {
			typeCol = i
			break
		}
	}
	if amountCol < 0 {
		for i, h := range headers {
			if i != typeCol && feeAmountColRe.MatchString(h) {
				amountCol = i
				break
			}
		}
	}
	for i, h := range headers {
		if i != typeCol && i != amountCol && feeDescColRe.MatchString(h) {
			descCol = i
			break
		}
	}
	return typeCol, amountCol, descCol
}

func feeFromRow(row []string, typeCol, amountCol, descCol int) (permits.PermitFee, bool) {
	if typeCol >= len(row) || amountCol >= len(row) {
		return permits.PermitFee{}, false
	}
	feeType := strings.TrimSpace(row[typeCol])
	amountText := row[amountCol]
	if feeType == "" || amountText == "" {
		return permits.PermitFee{}, false
	}
	amount, ok := ParseAmount(amountText)
	if !ok {
		return permits.PermitFee{}, false
	}
	fee := permits.PermitFee{
		Type:   feeType,
		Amount: amount,
		Unit:   permits.InferFeeUnit(amountText),
	}
	if descCol >= 0 && descCol < len(row) {
		fee.Description = strings.TrimSpace(row[descCol])
	}
	return fee, true
}

// ParseAmount extracts a non-negative dollar amount from free text, stripping
// currency symbols and thousands separators. Rows whose amounts do not parse
// are dropped rather than stored.
func ParseAmount(text string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(text)
	if strings.Contains(cleaned, "-") && strings.IndexByte(cleaned, '-') == 0 {
		return 0, false
	}
	match := amountNumberRe.FindString(cleaned)
	if match == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(match, 64)
	if err != nil || amount < 0 {
		return 0, false
	}
	return amount, true
}
