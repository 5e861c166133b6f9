// Package permits defines the core domain types shared across the
// acquisition pipeline: jurisdictions, permit types, fees, forms, contact
// records, and the aggregate results produced by crawls and acquisitions.
package permits

import "time"

// Address is an immutable postal address supplied by the caller.
type Address struct {
	Street    string   `json:"street"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	Zip       string   `json:"zip"`
	County    string   `json:"county,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// JurisdictionType identifies the level of government a jurisdiction sits at.
type JurisdictionType string

// Supported jurisdiction levels.
const (
	JurisdictionCity   JurisdictionType = "city"
	JurisdictionCounty JurisdictionType = "county"
	JurisdictionState  JurisdictionType = "state"
)

// Jurisdiction is a permitting authority. It is owned by the caller;
// discovery only resolves or enriches its website fields.
type Jurisdiction struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        JurisdictionType `json:"type"`
	Address     Address          `json:"address"`
	Website     string           `json:"website,omitempty"`
	PermitURL   string           `json:"permit_url,omitempty"`
	Contact     *ContactInfo     `json:"contact,omitempty"`
	LastUpdated time.Time        `json:"last_updated"`
	IsActive    bool             `json:"is_active"`
}

// PermitType describes one category of permit a jurisdiction issues.
type PermitType struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Category       PermitCategory `json:"category"`
	Description    string         `json:"description,omitempty"`
	Requirements   []string       `json:"requirements,omitempty"`
	ProcessingTime string         `json:"processing_time,omitempty"`
	Fees           []PermitFee    `json:"fees,omitempty"`
	Forms          []PermitForm   `json:"forms,omitempty"`
	LastUpdated    time.Time      `json:"last_updated"`
}

// PermitFee is a single fee line item. Amount is always non-negative;
// rows whose amounts fail to parse are dropped upstream rather than stored.
type PermitFee struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Unit        FeeUnit `json:"unit"`
	Description string  `json:"description,omitempty"`
	Conditions  string  `json:"conditions,omitempty"`
}

// PermitForm is a downloadable or online application form. Identity is the
// absolute URL: two forms sharing a URL are the same form regardless of name.
type PermitForm struct {
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	FileType    FormFileType `json:"file_type"`
	IsRequired  bool         `json:"is_required"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
}

// ContactInfo carries the reachable details for a permitting department.
type ContactInfo struct {
	Department string        `json:"department,omitempty"`
	Phone      string        `json:"phone,omitempty"`
	Email      string        `json:"email,omitempty"`
	Address    *Address      `json:"address,omitempty"`
	Hours      BusinessHours `json:"hours,omitempty"`
}

// DayHours is the open/close window for one weekday, normalized to 24-hour
// HH:MM, or an explicit closed marker.
type DayHours struct {
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
	Closed bool   `json:"closed,omitempty"`
}

// BusinessHours maps lowercase weekday names to their hours. Absent days are
// unknown, which is distinct from explicitly closed.
type BusinessHours map[string]DayHours

// ExtractedTable is a classified table lifted from one document. It is
// ephemeral: produced and consumed within a single extraction pass.
type ExtractedTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Type    TableType  `json:"type"`
}

// TableType classifies what an extracted table appears to contain.
type TableType string

// Table classifications, in tie-break priority order.
const (
	TableFees         TableType = "fees"
	TableRequirements TableType = "requirements"
	TableSchedule     TableType = "schedule"
	TableUnknown      TableType = "unknown"
)

// StepField is one input field discovered on an application wizard step.
type StepField struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required"`
}

// FileUpload records a file input on a wizard step with its accepted formats.
type FileUpload struct {
	Name     string   `json:"name"`
	Accepts  []string `json:"accepts,omitempty"`
	Required bool     `json:"required"`
}

// MappedStep is one page of a reconstructed application wizard. Numbers are
// assigned in discovery order and are not globally unique across flows.
type MappedStep struct {
	Number          int          `json:"number"`
	URL             string       `json:"url"`
	Title           string       `json:"title,omitempty"`
	Fields          []StepField  `json:"fields,omitempty"`
	Uploads         []FileUpload `json:"uploads,omitempty"`
	NextURL         string       `json:"next_url,omitempty"`
	ValidationRules []string     `json:"validation_rules,omitempty"`
}

// MappedFlow is an ordered multi-step application wizard reconstructed from
// a jurisdiction's online application pages.
type MappedFlow struct {
	StartURL string       `json:"start_url"`
	Title    string       `json:"title,omitempty"`
	Steps    []MappedStep `json:"steps"`
}

// DetectedSystem identifies an external permitting platform serving a
// jurisdiction, such as a hosted portal vendor.
type DetectedSystem struct {
	Vendor string `json:"vendor"`
	URL    string `json:"url"`
	Source string `json:"source,omitempty"`
}

// CrawlResult aggregates everything extracted across all pages of one crawl.
// Forms are deduplicated by URL, fees by (type, amount), requirements as a
// set; processing times merge with later entries winning.
type CrawlResult struct {
	StartURL        string            `json:"start_url"`
	PagesVisited    int               `json:"pages_visited"`
	Forms           []PermitForm      `json:"forms,omitempty"`
	Fees            []PermitFee       `json:"fees,omitempty"`
	Contacts        []ContactInfo     `json:"contacts,omitempty"`
	Requirements    []string          `json:"requirements,omitempty"`
	ProcessingTimes map[string]string `json:"processing_times,omitempty"`
	FetchedAt       time.Time         `json:"fetched_at"`
}

// Methodology traces how a result was assembled: which techniques ran and
// which fallbacks fired.
type Methodology struct {
	Techniques []string `json:"techniques,omitempty"`
	Fallbacks  []string `json:"fallbacks,omitempty"`
}

// AcquisitionResult is the final scored output of one acquisition request.
type AcquisitionResult struct {
	ID              string            `json:"id"`
	Jurisdiction    *Jurisdiction     `json:"jurisdiction,omitempty"`
	Permits         []PermitType      `json:"permits,omitempty"`
	Forms           []PermitForm      `json:"forms,omitempty"`
	Fees            []PermitFee       `json:"fees,omitempty"`
	Contact         *ContactInfo      `json:"contact,omitempty"`
	Requirements    []string          `json:"requirements,omitempty"`
	ProcessingTimes map[string]string `json:"processing_times,omitempty"`
	Flows           []MappedFlow      `json:"flows,omitempty"`
	Systems         []DetectedSystem  `json:"systems,omitempty"`
	Confidence      float64           `json:"confidence"`
	DataQuality     float64           `json:"data_quality"`
	AIParsed        bool              `json:"ai_parsed"`
	Sources         []string          `json:"sources,omitempty"`
	Methodology     Methodology       `json:"methodology"`
	AcquiredAt      time.Time         `json:"acquired_at"`
}
