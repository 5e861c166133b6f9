package pipeline

import (
	"bytes"

	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/understand"
)

// Weights parameterize confidence scoring. The values are tuned, not
// derived; override them through config rather than editing call sites.
type Weights struct {
	Base      float64
	PerSource float64
	Permits   float64
	Forms     float64
	Contact   float64
	Flow      float64

	// Fallback is the fixed confidence assigned when only the keyword scan
	// produced anything.
	Fallback float64
}

// DefaultWeights returns the scoring constants used in production.
func DefaultWeights() Weights {
	return Weights{
		Base:      0.5,
		PerSource: 0.1,
		Permits:   0.2,
		Forms:     0.1,
		Contact:   0.1,
		Flow:      0.1,
		Fallback:  0.3,
	}
}

func (w Weights) withDefaults() Weights {
	d := DefaultWeights()
	if w.Base <= 0 {
		w.Base = d.Base
	}
	if w.PerSource <= 0 {
		w.PerSource = d.PerSource
	}
	if w.Permits <= 0 {
		w.Permits = d.Permits
	}
	if w.Forms <= 0 {
		w.Forms = d.Forms
	}
	if w.Contact <= 0 {
		w.Contact = d.Contact
	}
	if w.Flow <= 0 {
		w.Flow = d.Flow
	}
	if w.Fallback <= 0 {
		w.Fallback = d.Fallback
	}
	return w
}

// Score computes the confidence for a finished result: the base plus one
// step per distinct source type plus bonuses for the data classes present.
// A validator verdict, when available, is averaged in. The result is
// clamped to [0,1].
func (w Weights) Score(res *permits.AcquisitionResult, v *understand.Validation) float64 {
	score := w.Base
	score += float64(len(res.Sources)) * w.PerSource
	if len(res.Permits) > 0 {
		score += w.Permits
	}
	if len(res.Forms) > 0 {
		score += w.Forms
	}
	if res.Contact != nil && (res.Contact.Phone != "" || res.Contact.Email != "") {
		score += w.Contact
	}
	if len(res.Flows) > 0 {
		score += w.Flow
	}
	if v != nil {
		score = (score + v.Confidence) / 2
	}
	return clamp01(score)
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

// fallbackCategories are the category keywords the last-resort scan looks
// for, in reporting order.
var fallbackCategories = []struct {
	keyword  string
	name     string
	category permits.PermitCategory
}{
	{"building", "Building Permit", permits.CategoryBuilding},
	{"electrical", "Electrical Permit", permits.CategoryElectrical},
	{"plumbing", "Plumbing Permit", permits.CategoryPlumbing},
	{"mechanical", "Mechanical Permit", permits.CategoryMechanical},
}

// keywordScan mines raw page bytes for permit category names. It backstops
// runs where every structured extraction came up empty.
func keywordScan(body []byte) []permits.PermitType {
	if len(body) == 0 {
		return nil
	}
	lower := bytes.ToLower(body)
	var found []permits.PermitType
	for _, fc := range fallbackCategories {
		if !bytes.Contains(lower, []byte(fc.keyword)) {
			continue
		}
		found = append(found, permits.PermitType{
			Name:     fc.name,
			Category: fc.category,
		})
	}
	return found
}
