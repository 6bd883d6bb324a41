// Package memory implements the authoritative in-memory store. Durable
// backends wrap it and snapshot its state after every successful
// transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"coehub/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type state struct {
	users   map[string]domain.BackendUser
	records map[string]map[string]domain.Record // resource -> id -> record
	reports map[string]domain.Report
}

func newState() *state {
	s := &state{
		users:   make(map[string]domain.BackendUser),
		records: make(map[string]map[string]domain.Record),
		reports: make(map[string]domain.Report),
	}
	for _, resource := range domain.RecordResources() {
		s.records[resource] = make(map[string]domain.Record)
	}
	return s
}

// Store holds all state in process memory guarded by a single mutex.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
	newID func() string
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Tx applies buffered mutations to a copy of the state; the copy replaces
// the live state only when the transaction function returns nil.
type Tx struct {
	store *Store
	state *state
}

var _ domain.Transaction = (*Tx)(nil)

// RunInTransaction runs fn against a working copy of the state and commits
// it atomically on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{store: s, state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// CreateUser persists a new backend user, assigning an id when absent.
func (tx *Tx) CreateUser(user domain.BackendUser) (domain.BackendUser, error) {
	if user.ID == "" {
		user.ID = tx.store.newID()
	}
	if _, exists := tx.state.users[user.ID]; exists {
		return domain.BackendUser{}, fmt.Errorf("user %s already exists", user.ID)
	}
	tx.state.users[user.ID] = user
	return user, nil
}

// UpdateUser mutates an existing user through the mutator.
func (tx *Tx) UpdateUser(id string, mutator func(*domain.BackendUser) error) (domain.BackendUser, error) {
	user, ok := tx.state.users[id]
	if !ok {
		return domain.BackendUser{}, domain.NotFoundError{Entity: "user", ID: id}
	}
	if err := mutator(&user); err != nil {
		return domain.BackendUser{}, err
	}
	user.ID = id
	tx.state.users[id] = user
	return user, nil
}

// CreateRecord persists a new record under the resource, stamping identity
// and timestamps.
func (tx *Tx) CreateRecord(resource string, rec domain.Record) (domain.Record, error) {
	bucket, ok := tx.state.records[resource]
	if !ok {
		return domain.Record{}, fmt.Errorf("unknown resource %s", resource)
	}
	if rec.ID == "" {
		rec.ID = tx.store.newID()
	}
	if _, exists := bucket[rec.ID]; exists {
		return domain.Record{}, fmt.Errorf("record %s already exists", rec.ID)
	}
	now := tx.store.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	bucket[rec.ID] = rec.Clone()
	return rec, nil
}

// UpdateRecord mutates an existing record. The creator reference and
// creation timestamp are immutable.
func (tx *Tx) UpdateRecord(resource, id string, mutator func(*domain.Record) error) (domain.Record, error) {
	entityType, bucket, err := tx.lookup(resource)
	if err != nil {
		return domain.Record{}, err
	}
	rec, ok := bucket[id]
	if !ok {
		return domain.Record{}, domain.NotFoundError{Entity: entityType, ID: id}
	}
	updated := rec.Clone()
	if err := mutator(&updated); err != nil {
		return domain.Record{}, err
	}
	updated.ID = rec.ID
	updated.CreatedAt = rec.CreatedAt
	updated.CreatedBy = rec.CreatedBy
	updated.UpdatedAt = tx.store.now()
	bucket[id] = updated.Clone()
	return updated, nil
}

// DeleteRecord removes a record. Deletion is terminal.
func (tx *Tx) DeleteRecord(resource, id string) error {
	entityType, bucket, err := tx.lookup(resource)
	if err != nil {
		return err
	}
	if _, ok := bucket[id]; !ok {
		return domain.NotFoundError{Entity: entityType, ID: id}
	}
	delete(bucket, id)
	return nil
}

// CreateReport persists a saved filter report. Reports are never mutated or
// deleted.
func (tx *Tx) CreateReport(report domain.Report) (domain.Report, error) {
	if report.ID == "" {
		report.ID = tx.store.newID()
	}
	if _, exists := tx.state.reports[report.ID]; exists {
		return domain.Report{}, fmt.Errorf("report %s already exists", report.ID)
	}
	now := tx.store.now()
	report.CreatedAt = now
	report.UpdatedAt = now
	report.Criteria = report.Criteria.Clone()
	tx.state.reports[report.ID] = report
	return report, nil
}

func (tx *Tx) lookup(resource string) (domain.EntityType, map[string]domain.Record, error) {
	bucket, ok := tx.state.records[resource]
	if !ok {
		return "", nil, fmt.Errorf("unknown resource %s", resource)
	}
	entityType, _ := domain.EntityTypeForResource(resource)
	return entityType, bucket, nil
}

// FindUser returns a user by internal id.
func (s *Store) FindUser(id string) (domain.BackendUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.state.users[id]
	return user, ok
}

// FindUserByEmail returns a user by email.
func (s *Store) FindUserByEmail(email string) (domain.BackendUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.state.users {
		if user.Email == email {
			return user, true
		}
	}
	return domain.BackendUser{}, false
}

// FindUserByProviderUID returns a user by provider subject id.
func (s *Store) FindUserByProviderUID(uid string) (domain.BackendUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.state.users {
		if user.ProviderUID == uid {
			return user, true
		}
	}
	return domain.BackendUser{}, false
}

// GetRecord returns one record by resource and id.
func (s *Store) GetRecord(resource, id string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.state.records[resource]
	if !ok {
		return domain.Record{}, false
	}
	rec, ok := bucket[id]
	if !ok {
		return domain.Record{}, false
	}
	return rec.Clone(), true
}

// ListRecords returns every record of a resource ordered by creation time,
// oldest first.
func (s *Store) ListRecords(resource string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(resource)
}

// ListReports returns every saved report ordered by creation time.
func (s *Store) ListReports() []domain.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listReportsLocked()
}

// UsageCounts implements the data-usage analytics source.
func (s *Store) UsageCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.state.records))
	for resource, bucket := range s.state.records {
		out[resource] = len(bucket)
	}
	return out
}

// UsageByUser counts records created by the user per resource.
func (s *Store) UsageByUser(userID string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.state.records))
	for resource, bucket := range s.state.records {
		count := 0
		for _, rec := range bucket {
			if rec.CreatedBy.ID == userID {
				count++
			}
		}
		out[resource] = count
	}
	return out
}

// ExportState returns a deep snapshot of the full state.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := domain.Snapshot{Records: make(map[string][]domain.Record, len(s.state.records))}
	for _, user := range s.state.users {
		snapshot.Users = append(snapshot.Users, user)
	}
	sort.Slice(snapshot.Users, func(i, j int) bool { return snapshot.Users[i].ID < snapshot.Users[j].ID })
	for resource := range s.state.records {
		recs, _ := s.listLocked(resource)
		snapshot.Records[resource] = recs
	}
	snapshot.Reports = s.listReportsLocked()
	return snapshot
}

// ImportState replaces the full state with the snapshot contents.
func (s *Store) ImportState(snapshot domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := newState()
	for _, user := range snapshot.Users {
		st.users[user.ID] = user
	}
	for resource, recs := range snapshot.Records {
		bucket, ok := st.records[resource]
		if !ok {
			bucket = make(map[string]domain.Record)
			st.records[resource] = bucket
		}
		for _, rec := range recs {
			bucket[rec.ID] = rec.Clone()
		}
	}
	for _, report := range snapshot.Reports {
		st.reports[report.ID] = report
	}
	s.state = st
}

func (s *Store) listLocked(resource string) ([]domain.Record, error) {
	bucket, ok := s.state.records[resource]
	if !ok {
		return nil, fmt.Errorf("unknown resource %s", resource)
	}
	out := make([]domain.Record, 0, len(bucket))
	for _, rec := range bucket {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) listReportsLocked() []domain.Report {
	out := make([]domain.Report, 0, len(s.state.reports))
	for _, report := range s.state.reports {
		out = append(out, report)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (st *state) clone() *state {
	out := newState()
	for id, user := range st.users {
		out.users[id] = user
	}
	for resource, bucket := range st.records {
		target, ok := out.records[resource]
		if !ok {
			target = make(map[string]domain.Record, len(bucket))
			out.records[resource] = target
		}
		for id, rec := range bucket {
			target[id] = rec.Clone()
		}
	}
	for id, report := range st.reports {
		out.reports[id] = report
	}
	return out
}
