package domain

import "context"

// Transaction exposes the mutating operations a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	CreateUser(BackendUser) (BackendUser, error)
	UpdateUser(id string, mutator func(*BackendUser) error) (BackendUser, error)
	CreateRecord(resource string, rec Record) (Record, error)
	UpdateRecord(resource, id string, mutator func(*Record) error) (Record, error)
	DeleteRecord(resource, id string) error
	CreateReport(Report) (Report, error)
}

// PersistentStore is a minimal abstraction over durable backends, mirroring
// the subset of capabilities the HTTP layer uses directly.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	FindUser(id string) (BackendUser, bool)
	FindUserByEmail(email string) (BackendUser, bool)
	FindUserByProviderUID(uid string) (BackendUser, bool)
	GetRecord(resource, id string) (Record, bool)
	ListRecords(resource string) ([]Record, error)
	ListReports() []Report
	// UsageCounts returns per-resource record counts.
	UsageCounts() map[string]int
	// UsageByUser returns per-resource counts of records created by the user.
	UsageByUser(userID string) map[string]int
}

// Snapshot is the serialized full state exchanged between the in-memory
// store and its durable wrappers.
type Snapshot struct {
	Users   []BackendUser       `json:"users"`
	Records map[string][]Record `json:"records"`
	Reports []Report            `json:"reports"`
}
