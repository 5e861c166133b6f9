package permits

import "strings"

// PermitCategory is the closed set of permit classifications.
type PermitCategory string

// Known permit categories. Anything unrecognized normalizes to CategoryOther.
const (
	CategoryBuilding   PermitCategory = "building"
	CategoryElectrical PermitCategory = "electrical"
	CategoryPlumbing   PermitCategory = "plumbing"
	CategoryMechanical PermitCategory = "mechanical"
	CategoryZoning     PermitCategory = "zoning"
	CategoryDemolition PermitCategory = "demolition"
	CategorySign       PermitCategory = "sign"
	CategoryBusiness   PermitCategory = "business"
	CategoryOther      PermitCategory = "other"
)

var categoryKeywords = map[PermitCategory][]string{
	CategoryBuilding:   {"building", "construction", "residential", "commercial"},
	CategoryElectrical: {"electrical", "electric"},
	CategoryPlumbing:   {"plumbing", "plumber", "sewer", "water heater"},
	CategoryMechanical: {"mechanical", "hvac", "heating", "cooling"},
	CategoryZoning:     {"zoning", "zone", "variance", "land use"},
	CategoryDemolition: {"demolition", "demo"},
	CategorySign:       {"sign", "signage", "banner"},
	CategoryBusiness:   {"business", "license", "occupational"},
}

// Categories scanned in a stable order so overlapping keywords resolve the
// same way every run.
var categoryOrder = []PermitCategory{
	CategoryBuilding,
	CategoryElectrical,
	CategoryPlumbing,
	CategoryMechanical,
	CategoryZoning,
	CategoryDemolition,
	CategorySign,
	CategoryBusiness,
}

// NormalizeCategory maps free text onto the closed category set. Exact enum
// values match first, then keyword hits; anything else is CategoryOther.
func NormalizeCategory(raw string) PermitCategory {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return CategoryOther
	}
	for _, cat := range categoryOrder {
		if text == string(cat) {
			return cat
		}
	}
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(text, kw) {
				return cat
			}
		}
	}
	return CategoryOther
}

// FeeUnit describes how a fee amount is applied.
type FeeUnit string

// Fee units. Flat is the default when no unit hint is present.
const (
	UnitFlat       FeeUnit = "flat"
	UnitPerSqft    FeeUnit = "per_sqft"
	UnitPerHour    FeeUnit = "per_hour"
	UnitPerUnit    FeeUnit = "per_unit"
	UnitPercentage FeeUnit = "percentage"
)

// InferFeeUnit guesses the unit from the raw amount text. Substring checks
// run in priority order; absent any hint the fee is flat.
func InferFeeUnit(raw string) FeeUnit {
	text := strings.ToLower(raw)
	switch {
	case strings.Contains(text, "%"):
		return UnitPercentage
	case strings.Contains(text, "sq") || strings.Contains(text, "square"):
		return UnitPerSqft
	case strings.Contains(text, "hour") || strings.Contains(text, "/hr") || strings.Contains(text, "per hr"):
		return UnitPerHour
	case strings.Contains(text, "unit"):
		return UnitPerUnit
	default:
		return UnitFlat
	}
}

// FormFileType classifies a form link by how it is delivered.
type FormFileType string

// Form delivery types.
const (
	FilePDF    FormFileType = "pdf"
	FileDoc    FormFileType = "doc"
	FileXLS    FormFileType = "xls"
	FileOnline FormFileType = "online"
)

// InferFileType classifies a form URL by its path extension. URLs without a
// recognized document extension are treated as online forms.
func InferFileType(rawURL string) FormFileType {
	path := strings.ToLower(rawURL)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	switch {
	case strings.HasSuffix(path, ".pdf"):
		return FilePDF
	case strings.HasSuffix(path, ".doc"), strings.HasSuffix(path, ".docx"):
		return FileDoc
	case strings.HasSuffix(path, ".xls"), strings.HasSuffix(path, ".xlsx"):
		return FileXLS
	default:
		return FileOnline
	}
}
