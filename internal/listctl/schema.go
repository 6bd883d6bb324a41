// Package listctl implements the generic entity list controller: one
// fetch/filter/mutate/refetch cycle shared by every entity page, parameterized
// by an entity schema and its backend resource path.
package listctl

import (
	"fmt"
	"strconv"
	"strings"

	"coehub/pkg/domain"
)

// FieldKind classifies how a schema field is edited, coerced, and filtered.
type FieldKind string

const (
	// KindText is a free-form string field.
	KindText FieldKind = "text"
	// KindDate is an ISO YYYY-MM-DD date field, compared lexically.
	KindDate FieldKind = "date"
	// KindNumber is an amount-like field coerced to a number on submit.
	KindNumber FieldKind = "number"
	// KindArray is a string-array field edited as a comma-joined string.
	KindArray FieldKind = "array"
)

// Field describes one editable attribute of an entity.
type Field struct {
	Name       string
	Kind       FieldKind
	Required   bool
	Filterable bool
}

// Schema binds an entity type to its ordered field descriptors.
type Schema struct {
	Type   domain.EntityType
	Fields []Field
}

// Resource returns the backend resource path segment for the schema.
func (s Schema) Resource() string { return s.Type.Resource() }

// Field looks up a field descriptor by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// EmptyForm returns the default form buffer: every field present and empty.
func (s Schema) EmptyForm() map[string]string {
	form := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		form[f.Name] = ""
	}
	return form
}

// FormFromRecord copies a record into an editable form buffer: dates
// normalized to YYYY-MM-DD, arrays joined with ", ", numbers rendered
// without exponent.
func (s Schema) FormFromRecord(rec domain.Record) map[string]string {
	form := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		value := rec.FieldString(f.Name)
		if f.Kind == KindDate {
			value = NormalizeDate(value)
		}
		form[f.Name] = value
	}
	return form
}

// ValidationError reports a form buffer problem caught before any network
// call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

// Coerce validates required fields and converts the form buffer into typed
// field values: numbers parsed, arrays split on commas, dates normalized.
// Empty optional values are omitted.
func (s Schema) Coerce(form map[string]string) (map[string]any, error) {
	fields := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		raw := strings.TrimSpace(form[f.Name])
		if raw == "" {
			if f.Required {
				return nil, ValidationError{Field: f.Name, Reason: "required"}
			}
			continue
		}
		switch f.Kind {
		case KindNumber:
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, ValidationError{Field: f.Name, Reason: "not a number"}
			}
			fields[f.Name] = n
		case KindArray:
			parts := strings.Split(raw, ",")
			values := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					values = append(values, p)
				}
			}
			fields[f.Name] = values
		case KindDate:
			fields[f.Name] = NormalizeDate(raw)
		default:
			fields[f.Name] = raw
		}
	}
	return fields, nil
}

// NormalizeDate reduces a timestamp-ish value to its YYYY-MM-DD prefix so the
// lexical date comparison rule holds. Values already in input format pass
// through unchanged.
func NormalizeDate(value string) string {
	if i := strings.IndexByte(value, 'T'); i == 10 {
		return value[:10]
	}
	return value
}

// Built-in entity schemas. Field sets mirror the backend's seeded tables; the
// controller itself never depends on a specific set.

// Projects describes commercial project records.
func Projects() Schema {
	return Schema{Type: domain.EntityProject, Fields: []Field{
		{Name: "projectTitle", Kind: KindText, Required: true, Filterable: true},
		{Name: "company", Kind: KindText, Filterable: true},
		{Name: "status", Kind: KindText, Filterable: true},
		{Name: "startDate", Kind: KindDate, Filterable: true},
		{Name: "endDate", Kind: KindDate, Filterable: true},
		{Name: "amount", Kind: KindNumber},
		{Name: "teamMembers", Kind: KindArray, Filterable: true},
	}}
}

// Patents describes patent records.
func Patents() Schema {
	return Schema{Type: domain.EntityPatent, Fields: []Field{
		{Name: "title", Kind: KindText, Required: true, Filterable: true},
		{Name: "patentNumber", Kind: KindText, Filterable: true},
		{Name: "office", Kind: KindText, Filterable: true},
		{Name: "status", Kind: KindText, Filterable: true},
		{Name: "filingDate", Kind: KindDate, Filterable: true},
		{Name: "inventors", Kind: KindArray, Filterable: true},
	}}
}

// FundingProposals describes funding proposal records.
func FundingProposals() Schema {
	return Schema{Type: domain.EntityFundingProposal, Fields: []Field{
		{Name: "title", Kind: KindText, Required: true, Filterable: true},
		{Name: "agency", Kind: KindText, Filterable: true},
		{Name: "status", Kind: KindText, Filterable: true},
		{Name: "submissionDate", Kind: KindDate, Filterable: true},
		{Name: "amount", Kind: KindNumber},
		{Name: "investigators", Kind: KindArray, Filterable: true},
	}}
}

// LocalCollaborations describes local collaboration records.
func LocalCollaborations() Schema {
	return Schema{Type: domain.EntityLocalCollaboration, Fields: []Field{
		{Name: "partnerName", Kind: KindText, Required: true, Filterable: true},
		{Name: "sector", Kind: KindText, Filterable: true},
		{Name: "scope", Kind: KindText, Filterable: true},
		{Name: "startDate", Kind: KindDate, Filterable: true},
		{Name: "endDate", Kind: KindDate, Filterable: true},
		{Name: "contacts", Kind: KindArray},
	}}
}

// Collaborations describes international collaboration records.
func Collaborations() Schema {
	return Schema{Type: domain.EntityCollaboration, Fields: []Field{
		{Name: "institution", Kind: KindText, Required: true, Filterable: true},
		{Name: "country", Kind: KindText, Filterable: true},
		{Name: "scope", Kind: KindText, Filterable: true},
		{Name: "startDate", Kind: KindDate, Filterable: true},
		{Name: "endDate", Kind: KindDate, Filterable: true},
		{Name: "contacts", Kind: KindArray},
	}}
}

// Schemas returns every built-in schema keyed by resource path.
func Schemas() map[string]Schema {
	out := make(map[string]Schema)
	for _, s := range []Schema{Projects(), Patents(), FundingProposals(), LocalCollaborations(), Collaborations()} {
		out[s.Resource()] = s
	}
	return out
}
