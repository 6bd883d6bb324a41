// Package domain defines the core persistent entities and value types used by
// coehub: sessions, entity records, filter criteria, and saved reports.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the backend.
type EntityType string

// Supported entity type identifiers used in persistence buckets and reports.
const (
	// EntityProject identifies a commercial project record.
	EntityProject EntityType = "project"
	// EntityPatent identifies a patent record.
	EntityPatent EntityType = "patent"
	// EntityFundingProposal identifies a funding proposal record.
	EntityFundingProposal EntityType = "funding_proposal"
	// EntityLocalCollaboration identifies a local collaboration record.
	EntityLocalCollaboration EntityType = "local_collaboration"
	// EntityCollaboration identifies an international collaboration record.
	EntityCollaboration EntityType = "collaboration"
	// EntityReport identifies a saved filter report.
	EntityReport EntityType = "report"
)

// Resource maps an entity type to its backend resource path segment.
func (t EntityType) Resource() string {
	switch t {
	case EntityProject:
		return "projects"
	case EntityPatent:
		return "patents"
	case EntityFundingProposal:
		return "funding-proposals"
	case EntityLocalCollaboration:
		return "local-collaborations"
	case EntityCollaboration:
		return "collaborations"
	case EntityReport:
		return "reports"
	}
	return string(t)
}

// EntityTypeForResource resolves a backend resource path segment back to its
// entity type. Returns false for unknown resources.
func EntityTypeForResource(resource string) (EntityType, bool) {
	for _, t := range []EntityType{
		EntityProject, EntityPatent, EntityFundingProposal,
		EntityLocalCollaboration, EntityCollaboration,
	} {
		if t.Resource() == resource {
			return t, true
		}
	}
	return "", false
}

// RecordResources lists the resource path segments that hold entity records
// (reports are persisted separately and excluded here).
func RecordResources() []string {
	return []string{
		EntityProject.Resource(),
		EntityPatent.Resource(),
		EntityFundingProposal.Resource(),
		EntityLocalCollaboration.Resource(),
		EntityCollaboration.Resource(),
	}
}

// Base carries the server-assigned identity and timestamps shared by all
// persisted records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Creator references the account that created a record. It is set once at
// creation and never changed afterwards.
type Creator struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Record is one persisted row of a business entity. Attribute values live in
// Fields keyed by schema field name; values are strings, ISO dates
// (YYYY-MM-DD), numbers, or string arrays depending on the field kind.
type Record struct {
	Base
	Fields     map[string]any `json:"fields"`
	Attachment string         `json:"attachment,omitempty"`
	CreatedBy  Creator        `json:"created_by"`
}

// FieldString renders the named field value for filtering and display.
// Missing fields render as the empty string; arrays join with ", ".
func (r Record) FieldString(name string) string {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprint(val)
	}
}

// Clone returns a deep copy of the record so callers can mutate form buffers
// without aliasing list state.
func (r Record) Clone() Record {
	out := r
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		switch val := v.(type) {
		case []string:
			out.Fields[k] = append([]string(nil), val...)
		case []any:
			out.Fields[k] = append([]any(nil), val...)
		default:
			out.Fields[k] = v
		}
	}
	return out
}

// BackendUser is the user record held by the application's own directory.
type BackendUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Department  string `json:"department,omitempty"`
	ProviderUID string `json:"provider_uid,omitempty"`
}

// Session is the merged, canonical representation of the authenticated actor.
// ID is always the backend identity's internal id when one exists; a degraded
// session built from the provider identity alone carries no ID and no Role.
type Session struct {
	ID          string `json:"id,omitempty"`
	ProviderUID string `json:"provider_uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Department  string `json:"department,omitempty"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// Report is a named, persisted snapshot of a filter configuration.
type Report struct {
	Base
	Title      string         `json:"title"`
	SourceType EntityType     `json:"source_type"`
	Criteria   FilterCriteria `json:"filter_criteria"`
	CreatedBy  Creator        `json:"created_by"`
}

// NotFoundError reports a missing entity by type and id.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
