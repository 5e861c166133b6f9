package understand

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mrmoe28/permitscout/internal/permits"
)

// rawUnderstanding is the loosely-typed shape the model is asked to emit.
// Every field is optional; validation decides what survives into an
// Understanding.
type rawUnderstanding struct {
	Permits         []rawPermit       `json:"permits"`
	Forms           []rawForm         `json:"forms"`
	Fees            []rawFee          `json:"fees"`
	Contact         *rawContact       `json:"contact"`
	Requirements    []string          `json:"requirements"`
	ProcessingTimes map[string]string `json:"processing_times"`
	Quality         *float64          `json:"quality"`
}

type rawPermit struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	ProcessingTime string   `json:"processing_time"`
	Requirements   []string `json:"requirements"`
}

type rawForm struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	FileType string `json:"file_type"`
	Required bool   `json:"required"`
}

type rawFee struct {
	Type        string   `json:"type"`
	Amount      *float64 `json:"amount"`
	Unit        string   `json:"unit"`
	Description string   `json:"description"`
}

type rawContact struct {
	Department string `json:"department"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

// parseUnderstanding decodes model output into the validated shape. Invalid
// entries are dropped one by one; only undecodable JSON is an error. A
// missing quality reports the midpoint rather than false certainty either
// way.
func parseUnderstanding(content []byte) (*Understanding, error) {
	var raw rawUnderstanding
	if err := json.Unmarshal(extractJSON(content), &raw); err != nil {
		return nil, fmt.Errorf("decode understanding: %w", err)
	}

	u := &Understanding{Quality: 0.5}
	if raw.Quality != nil {
		u.Quality = clamp01(*raw.Quality)
	}

	for _, p := range raw.Permits {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		category := permits.NormalizeCategory(p.Category)
		if category == permits.CategoryOther {
			category = permits.NormalizeCategory(name)
		}
		u.Permits = append(u.Permits, permits.PermitType{
			Name:           name,
			Category:       category,
			Description:    strings.TrimSpace(p.Description),
			ProcessingTime: strings.TrimSpace(p.ProcessingTime),
			Requirements:   cleanStrings(p.Requirements),
		})
	}

	for _, f := range raw.Forms {
		name := strings.TrimSpace(f.Name)
		formURL := validFormURL(f.URL)
		if name == "" || formURL == "" {
			continue
		}
		fileType := permits.FormFileType(strings.ToLower(strings.TrimSpace(f.FileType)))
		switch fileType {
		case permits.FilePDF, permits.FileDoc, permits.FileXLS, permits.FileOnline:
		default:
			fileType = permits.InferFileType(formURL)
		}
		u.Forms = append(u.Forms, permits.PermitForm{
			Name:       name,
			URL:        formURL,
			FileType:   fileType,
			IsRequired: f.Required,
		})
	}

	for _, f := range raw.Fees {
		feeType := strings.TrimSpace(f.Type)
		if feeType == "" || f.Amount == nil || *f.Amount < 0 {
			continue
		}
		unit := permits.FeeUnit(strings.ToLower(strings.TrimSpace(f.Unit)))
		switch unit {
		case permits.UnitFlat, permits.UnitPerSqft, permits.UnitPerHour, permits.UnitPerUnit, permits.UnitPercentage:
		default:
			unit = permits.InferFeeUnit(f.Unit)
		}
		u.Fees = append(u.Fees, permits.PermitFee{
			Type:        feeType,
			Amount:      *f.Amount,
			Unit:        unit,
			Description: strings.TrimSpace(f.Description),
		})
	}

	if raw.Contact != nil {
		contact := &permits.ContactInfo{
			Department: strings.TrimSpace(raw.Contact.Department),
			Phone:      strings.TrimSpace(raw.Contact.Phone),
			Email:      strings.TrimSpace(raw.Contact.Email),
		}
		if contact.Department != "" || contact.Phone != "" || contact.Email != "" {
			u.Contact = contact
		}
	}

	u.Requirements = cleanStrings(raw.Requirements)

	for k, v := range raw.ProcessingTimes {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if u.ProcessingTimes == nil {
			u.ProcessingTimes = make(map[string]string)
		}
		u.ProcessingTimes[k] = v
	}

	return u, nil
}

// validFormURL accepts only absolute http(s) URLs; everything else is
// treated as hallucinated.
func validFormURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}

func cleanStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractJSON trims markdown fences and any prose around the outermost JSON
// object, since chat models decorate output despite instructions.
func extractJSON(content []byte) []byte {
	s := strings.TrimSpace(string(content))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return []byte(strings.TrimSpace(s))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
