package permits

import (
	"math"
	"strings"
)

// DedupeForms collapses forms sharing an absolute URL, keeping the first
// occurrence. Order is otherwise preserved.
func DedupeForms(forms []PermitForm) []PermitForm {
	if len(forms) == 0 {
		return forms
	}
	seen := make(map[string]struct{}, len(forms))
	out := forms[:0:0]
	for _, f := range forms {
		key := strings.TrimSpace(f.URL)
		if key == "" {
			out = append(out, f)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

// DedupeFees collapses fees sharing a (type, amount) pair, keeping the first.
func DedupeFees(fees []PermitFee) []PermitFee {
	if len(fees) == 0 {
		return fees
	}
	type key struct {
		typ    string
		amount float64
	}
	seen := make(map[key]struct{}, len(fees))
	out := fees[:0:0]
	for _, f := range fees {
		k := key{typ: strings.ToLower(strings.TrimSpace(f.Type)), amount: f.Amount}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

// MergeFees appends externally sourced fees onto a base list, dropping an
// external fee only when the base already holds one with the same type
// (case-insensitive) and an amount within a cent.
func MergeFees(base, external []PermitFee) []PermitFee {
	out := make([]PermitFee, 0, len(base)+len(external))
	out = append(out, base...)
	for _, ext := range external {
		if feeDuplicated(base, ext) {
			continue
		}
		out = append(out, ext)
	}
	return out
}

func feeDuplicated(base []PermitFee, candidate PermitFee) bool {
	ctype := strings.ToLower(strings.TrimSpace(candidate.Type))
	for _, b := range base {
		if strings.ToLower(strings.TrimSpace(b.Type)) != ctype {
			continue
		}
		if math.Abs(b.Amount-candidate.Amount) <= 0.01 {
			return true
		}
	}
	return false
}

// MergeContacts fills absent fields of base from extra. Fields already
// present on base are never overwritten. A nil base adopts extra wholesale.
func MergeContacts(base, extra *ContactInfo) *ContactInfo {
	if base == nil {
		if extra == nil {
			return nil
		}
		cp := *extra
		return &cp
	}
	if extra == nil {
		return base
	}
	merged := *base
	if merged.Department == "" {
		merged.Department = extra.Department
	}
	if merged.Phone == "" {
		merged.Phone = extra.Phone
	}
	if merged.Email == "" {
		merged.Email = extra.Email
	}
	if merged.Address == nil {
		merged.Address = extra.Address
	}
	if len(merged.Hours) == 0 {
		merged.Hours = extra.Hours
	}
	return &merged
}

// OverlayContacts merges update onto base with the last non-empty value
// winning per attribute. Crawl aggregation uses this so later pages can
// correct earlier ones; MergeContacts is the opposite rule.
func OverlayContacts(base, update *ContactInfo) *ContactInfo {
	if base == nil {
		if update == nil {
			return nil
		}
		cp := *update
		return &cp
	}
	if update == nil {
		return base
	}
	merged := *base
	if update.Department != "" {
		merged.Department = update.Department
	}
	if update.Phone != "" {
		merged.Phone = update.Phone
	}
	if update.Email != "" {
		merged.Email = update.Email
	}
	if update.Address != nil {
		merged.Address = update.Address
	}
	if len(update.Hours) > 0 {
		merged.Hours = update.Hours
	}
	return &merged
}

// MergeRequirements unions two requirement lists, treating entries as
// duplicates when either contains the other case-insensitively. The shorter
// phrasing never displaces an already kept longer one.
func MergeRequirements(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, r := range base {
		out = appendRequirement(out, r)
	}
	for _, r := range extra {
		out = appendRequirement(out, r)
	}
	return out
}

func appendRequirement(list []string, req string) []string {
	req = strings.TrimSpace(req)
	if req == "" {
		return list
	}
	lower := strings.ToLower(req)
	for _, kept := range list {
		keptLower := strings.ToLower(kept)
		if strings.Contains(keptLower, lower) || strings.Contains(lower, keptLower) {
			return list
		}
	}
	return append(list, req)
}

// MergeProcessingTimes overlays src onto dst with src entries winning. The
// returned map is freshly allocated when dst is nil.
func MergeProcessingTimes(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
