package domain

import "strings"

// DateRange bounds an ISO YYYY-MM-DD date field. Empty boundaries are open.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// FilterCriteria holds the active filter values for one list view. Empty
// criteria match everything; non-empty criteria combine with logical AND.
// Criteria are transient client state except when snapshotted into a Report.
type FilterCriteria struct {
	// Values maps a filterable text field to a case-insensitive substring
	// criterion.
	Values map[string]string `json:"values,omitempty"`
	// Ranges maps a date field to its from/to boundaries. Dates compare
	// lexically as ISO strings, never parsed.
	Ranges map[string]DateRange `json:"ranges,omitempty"`
	// OwnerID restricts matches to records created by the given account.
	OwnerID string `json:"owner_id,omitempty"`
}

// NewFilterCriteria returns the all-empty criteria every list view starts
// with.
func NewFilterCriteria() FilterCriteria {
	return FilterCriteria{
		Values: make(map[string]string),
		Ranges: make(map[string]DateRange),
	}
}

// IsEmpty reports whether no criterion is active.
func (c FilterCriteria) IsEmpty() bool {
	if c.OwnerID != "" {
		return false
	}
	for _, v := range c.Values {
		if v != "" {
			return false
		}
	}
	for _, r := range c.Ranges {
		if r.From != "" || r.To != "" {
			return false
		}
	}
	return true
}

// Clone returns an independent copy, used when snapshotting criteria into a
// Report.
func (c FilterCriteria) Clone() FilterCriteria {
	out := FilterCriteria{
		Values:  make(map[string]string, len(c.Values)),
		Ranges:  make(map[string]DateRange, len(c.Ranges)),
		OwnerID: c.OwnerID,
	}
	for k, v := range c.Values {
		out.Values[k] = v
	}
	for k, v := range c.Ranges {
		out.Ranges[k] = v
	}
	return out
}

// Matches reports whether the record satisfies every active criterion.
// Text criteria match when the record's field value contains the criterion
// case-insensitively; date ranges compare lexically against non-empty
// boundaries; the owner criterion requires creator id equality. A missing
// field value is treated as the empty string.
func (c FilterCriteria) Matches(r Record) bool {
	for field, want := range c.Values {
		if want == "" {
			continue
		}
		have := strings.ToLower(r.FieldString(field))
		if !strings.Contains(have, strings.ToLower(want)) {
			return false
		}
	}
	for field, rng := range c.Ranges {
		if rng.From == "" && rng.To == "" {
			continue
		}
		have := r.FieldString(field)
		if rng.From != "" && have < rng.From {
			return false
		}
		if rng.To != "" && have > rng.To {
			return false
		}
	}
	if c.OwnerID != "" && r.CreatedBy.ID != c.OwnerID {
		return false
	}
	return true
}

// Filter returns the records matching the criteria, preserving input order.
func (c FilterCriteria) Filter(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
