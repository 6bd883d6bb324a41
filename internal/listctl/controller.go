package listctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"coehub/internal/blob"
	"coehub/pkg/domain"
)

// Scope selects which records a load fetches.
type Scope string

const (
	// ScopeAll fetches every record of the entity type.
	ScopeAll Scope = "all"
	// ScopeMine fetches only records created by the current session's user.
	ScopeMine Scope = "mine"
)

// Level classifies user-visible notifications.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notifier surfaces user-visible messages. Implementations decide rendering.
type Notifier interface {
	Notify(level Level, message string)
}

// Confirmer asks the user a yes/no question before a destructive action.
type Confirmer func(prompt string) bool

// FormMode tracks whether the form buffer targets a new or existing record.
type FormMode string

const (
	FormClosed FormMode = ""
	FormCreate FormMode = "create"
	FormEdit   FormMode = "edit"
)

// Client is the backend slice the controller needs. *backend.Client
// satisfies it.
type Client interface {
	List(ctx context.Context, resource string, onlyMine bool) ([]domain.Record, error)
	Create(ctx context.Context, resource string, fields map[string]any) (domain.Record, error)
	Update(ctx context.Context, resource, id string, fields map[string]any) (domain.Record, error)
	Delete(ctx context.Context, resource, id string) error
	UpdateAttachment(ctx context.Context, resource, id, attachment string) (domain.Record, error)
	SaveReport(ctx context.Context, title string, sourceType domain.EntityType, criteria domain.FilterCriteria) (domain.Report, error)
}

// Errors caught before any network call.
var (
	// ErrNoSession is returned when an operation requires an established
	// session and none exists.
	ErrNoSession = errors.New("listctl: no established session")
	// ErrInvalidFileType is returned when an attachment is not a PDF.
	ErrInvalidFileType = errors.New("listctl: only PDF attachments are accepted")
	// ErrTitleRequired is returned when saving a report without a title.
	ErrTitleRequired = errors.New("listctl: report title required")
	// ErrFormClosed is returned when Submit runs without an open form.
	ErrFormClosed = errors.New("listctl: no form open")
	// ErrNoBlobStore is returned by attachment operations when no object
	// storage was wired via WithBlobStore.
	ErrNoBlobStore = errors.New("listctl: no object storage wired")
)

// Controller owns the list lifecycle for one entity type. It is driven by a
// single UI event loop: methods are not safe for concurrent use.
type Controller struct {
	schema  Schema
	client  Client
	blobs   blob.Store
	session func() *domain.Session
	notify  Notifier
	confirm Confirmer
	logger  *zap.Logger

	records  []domain.Record
	criteria domain.FilterCriteria
	mode     FormMode
	form     map[string]string
	editing  string
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithBlobStore wires the object storage collaborator used for attachments.
func WithBlobStore(store blob.Store) ControllerOption {
	return func(c *Controller) { c.blobs = store }
}

// WithNotifier wires the user-visible notification sink.
func WithNotifier(n Notifier) ControllerOption {
	return func(c *Controller) { c.notify = n }
}

// WithConfirmer wires the destructive-action confirmation prompt.
func WithConfirmer(fn Confirmer) ControllerOption {
	return func(c *Controller) { c.confirm = fn }
}

// WithLogger wires structured logging.
func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController builds a controller for one entity schema. session reports
// the current canonical session; list operations refuse to run before
// reconciliation has established one.
func NewController(schema Schema, client Client, session func() *domain.Session, opts ...ControllerOption) *Controller {
	c := &Controller{
		schema:   schema,
		client:   client,
		session:  session,
		criteria: domain.NewFilterCriteria(),
		logger:   zap.NewNop(),
		confirm:  func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Records returns a copy of the unfiltered in-memory list.
func (c *Controller) Records() []domain.Record {
	return append([]domain.Record(nil), c.records...)
}

// Filtered recomputes the filtered view over the already-fetched list. Pure
// and synchronous; never triggers a network call.
func (c *Controller) Filtered() []domain.Record {
	return c.criteria.Filter(c.records)
}

// Criteria returns a copy of the active filter criteria.
func (c *Controller) Criteria() domain.FilterCriteria {
	return c.criteria.Clone()
}

// Mode returns the current form mode.
func (c *Controller) Mode() FormMode { return c.mode }

// Form returns a copy of the form buffer.
func (c *Controller) Form() map[string]string {
	out := make(map[string]string, len(c.form))
	for k, v := range c.form {
		out[k] = v
	}
	return out
}

// Load fetches the full list for the scope and replaces the in-memory list.
// On failure the previous list is left untouched so a transient error does
// not blank the screen.
func (c *Controller) Load(ctx context.Context, scope Scope) error {
	sess := c.session()
	if sess == nil {
		c.report(LevelError, "Sign in to load records.")
		return ErrNoSession
	}
	records, err := c.client.List(ctx, c.schema.Resource(), scope == ScopeMine)
	if err != nil {
		c.logger.Warn("list fetch failed, keeping previous records",
			zap.String("resource", c.schema.Resource()), zap.Error(err))
		c.report(LevelError, fmt.Sprintf("Could not load %s.", c.schema.Resource()))
		return err
	}
	c.records = records
	return nil
}

// BeginCreate resets the form buffer to the schema defaults and opens the
// form in create mode.
func (c *Controller) BeginCreate() {
	c.form = c.schema.EmptyForm()
	c.mode = FormCreate
	c.editing = ""
}

// BeginEdit copies the record into the form buffer, normalizing dates to the
// input format and arrays to their joined editable representation, and opens
// the form in edit mode.
func (c *Controller) BeginEdit(rec domain.Record) {
	c.form = c.schema.FormFromRecord(rec)
	c.mode = FormEdit
	c.editing = rec.ID
}

// CloseForm discards the form buffer.
func (c *Controller) CloseForm() {
	c.form = nil
	c.mode = FormClosed
	c.editing = ""
}

// SetField records a form input change.
func (c *Controller) SetField(name, value string) {
	if c.form == nil {
		c.form = c.schema.EmptyForm()
	}
	c.form[name] = value
}

// Submit validates the form buffer and posts it. In create mode the new
// record is appended; in edit mode the existing record is replaced in place.
// On any failure the form stays open so input is not lost.
func (c *Controller) Submit(ctx context.Context) error {
	if c.mode == FormClosed {
		return ErrFormClosed
	}
	fields, err := c.schema.Coerce(c.form)
	if err != nil {
		c.report(LevelError, err.Error())
		return err
	}

	switch c.mode {
	case FormCreate:
		rec, err := c.client.Create(ctx, c.schema.Resource(), fields)
		if err != nil {
			c.report(LevelError, "Could not save the record.")
			return err
		}
		c.records = append(c.records, rec)
	case FormEdit:
		rec, err := c.client.Update(ctx, c.schema.Resource(), c.editing, fields)
		if err != nil {
			c.report(LevelError, "Could not save the record.")
			return err
		}
		c.replace(rec)
	}
	c.CloseForm()
	return nil
}

// Remove deletes a record after explicit user confirmation. Without
// confirmation no DELETE call is made and the list is unchanged.
func (c *Controller) Remove(ctx context.Context, id string) error {
	if !c.confirm(fmt.Sprintf("Delete this %s record permanently?", c.schema.Type)) {
		return nil
	}
	if err := c.client.Delete(ctx, c.schema.Resource(), id); err != nil {
		c.report(LevelError, "Could not delete the record.")
		return err
	}
	for i, rec := range c.records {
		if rec.ID == id {
			c.records = append(c.records[:i], c.records[i+1:]...)
			break
		}
	}
	return nil
}

// SetFilter updates one text criterion. Filtering is recomputed by Filtered;
// no network call happens here.
func (c *Controller) SetFilter(field, value string) {
	c.criteria.Values[field] = value
}

// SetDateFilter updates one date-range criterion.
func (c *Controller) SetDateFilter(field, from, to string) {
	c.criteria.Ranges[field] = domain.DateRange{From: from, To: to}
}

// SetOwnerFilter restricts the view to records created by the given account.
// Empty clears the restriction.
func (c *Controller) SetOwnerFilter(accountID string) {
	c.criteria.OwnerID = accountID
}

// ClearFilters resets the criteria to all-empty. Idempotent.
func (c *Controller) ClearFilters() {
	c.criteria = domain.NewFilterCriteria()
}

// UploadAttachment stores a PDF for the record under
// pdfs/<userId>/<fileName>, then patches the record's attachment reference.
// The file type is validated before any storage or network call. Replacing an
// existing attachment is a two-step transition: delete the old object (a
// missing object is a no-op), then upload the new one.
func (c *Controller) UploadAttachment(ctx context.Context, id, fileName string, r io.Reader) error {
	if c.blobs == nil {
		return ErrNoBlobStore
	}
	sess := c.session()
	if sess == nil {
		c.report(LevelError, "Sign in to upload attachments.")
		return ErrNoSession
	}
	if !strings.EqualFold(path.Ext(fileName), ".pdf") {
		c.report(LevelError, "Only PDF files are accepted.")
		return ErrInvalidFileType
	}
	rec, ok := c.find(id)
	if !ok {
		return domain.NotFoundError{Entity: c.schema.Type, ID: id}
	}

	if rec.Attachment != "" {
		if _, err := c.blobs.Delete(ctx, rec.Attachment); err != nil {
			c.report(LevelError, "Could not replace the existing attachment.")
			return err
		}
	}
	owner := sess.ID
	if owner == "" {
		owner = sess.ProviderUID
	}
	key := path.Join("pdfs", owner, fileName)
	info, err := c.blobs.Put(ctx, key, r, blob.PutOptions{ContentType: "application/pdf"})
	if err != nil {
		c.report(LevelError, "Could not upload the file.")
		return err
	}
	updated, err := c.client.UpdateAttachment(ctx, c.schema.Resource(), id, info.Key)
	if err != nil {
		c.report(LevelError, "Could not attach the file to the record.")
		return err
	}
	c.replace(updated)
	return nil
}

// RemoveAttachment deletes the stored object (missing object is a no-op) and
// clears the record's attachment reference.
func (c *Controller) RemoveAttachment(ctx context.Context, id string) error {
	rec, ok := c.find(id)
	if !ok {
		return domain.NotFoundError{Entity: c.schema.Type, ID: id}
	}
	if rec.Attachment == "" {
		return nil
	}
	if c.blobs == nil {
		return ErrNoBlobStore
	}
	if _, err := c.blobs.Delete(ctx, rec.Attachment); err != nil {
		c.report(LevelError, "Could not remove the attachment.")
		return err
	}
	updated, err := c.client.UpdateAttachment(ctx, c.schema.Resource(), id, "")
	if err != nil {
		c.report(LevelError, "Could not update the record.")
		return err
	}
	c.replace(updated)
	return nil
}

// AttachmentURL resolves a time-limited download URL for a record's
// attachment.
func (c *Controller) AttachmentURL(ctx context.Context, id string) (string, error) {
	rec, ok := c.find(id)
	if !ok {
		return "", domain.NotFoundError{Entity: c.schema.Type, ID: id}
	}
	if rec.Attachment == "" {
		return "", nil
	}
	if c.blobs == nil {
		return "", ErrNoBlobStore
	}
	return c.blobs.PresignURL(ctx, rec.Attachment, blob.SignedURLOptions{})
}

// SaveReport persists a named snapshot of the current filter criteria. The
// entity list is not affected.
func (c *Controller) SaveReport(ctx context.Context, title string) error {
	if strings.TrimSpace(title) == "" {
		c.report(LevelError, "Report title is required.")
		return ErrTitleRequired
	}
	if _, err := c.client.SaveReport(ctx, title, c.schema.Type, c.criteria.Clone()); err != nil {
		c.report(LevelError, "Could not save the report.")
		return err
	}
	c.report(LevelInfo, "Report saved.")
	return nil
}

func (c *Controller) find(id string) (domain.Record, bool) {
	for _, rec := range c.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return domain.Record{}, false
}

func (c *Controller) replace(rec domain.Record) {
	for i := range c.records {
		if c.records[i].ID == rec.ID {
			c.records[i] = rec
			return
		}
	}
	c.records = append(c.records, rec)
}

func (c *Controller) report(level Level, message string) {
	if c.notify != nil {
		c.notify.Notify(level, message)
	}
}
