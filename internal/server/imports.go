package server

import (
	"context"
	"net/http"

	"coehub/internal/importer"
	"coehub/internal/listctl"
	"coehub/pkg/domain"
)

type importFailure struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

type importResponse struct {
	Created []domain.Record `json:"created"`
	Failed  []importFailure `json:"failed"`
}

// handleImportRecords bulk-loads a CSV stream into the resource's table. Rows
// are created individually; a bad header rejects the whole run before any
// write, while row failures are reported alongside the rows that succeeded.
func (s *Server) handleImportRecords(w http.ResponseWriter, r *http.Request) {
	resource := requestResource(r)
	schema, ok := listctl.Schemas()[resource]
	if !ok {
		writeError(w, http.StatusNotFound, "", "bulk import is not available for this resource")
		return
	}
	user := requestUser(r)

	imp := importer.New(schema, &storeCreator{store: s.store, user: user}, importer.WithLogger(s.logger))
	summary, err := imp.Import(r.Context(), r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", err.Error())
		return
	}

	s.metrics.Imports.WithLabelValues(resource, "created").Add(float64(len(summary.Created)))
	s.metrics.Imports.WithLabelValues(resource, "failed").Add(float64(len(summary.Failed)))

	resp := importResponse{Created: summary.Created, Failed: []importFailure{}}
	if resp.Created == nil {
		resp.Created = []domain.Record{}
	}
	for _, f := range summary.Failed {
		resp.Failed = append(resp.Failed, importFailure{Line: f.Line, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// storeCreator adapts the persistent store to the importer's Creator slice,
// stamping the importing user as the creator of every row.
type storeCreator struct {
	store domain.PersistentStore
	user  domain.BackendUser
}

func (c *storeCreator) Create(ctx context.Context, resource string, fields map[string]any) (domain.Record, error) {
	var created domain.Record
	err := c.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		rec, err := tx.CreateRecord(resource, domain.Record{
			Fields:    fields,
			CreatedBy: domain.Creator{ID: c.user.ID, Role: c.user.Role},
		})
		if err != nil {
			return err
		}
		created = rec
		return nil
	})
	return created, err
}
