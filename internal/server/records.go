package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"coehub/pkg/domain"
)

type recordRequest struct {
	Fields map[string]any `json:"fields"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	resource := requestResource(r)
	records, err := s.store.ListRecords(resource)
	if err != nil {
		writeError(w, http.StatusNotFound, "", "unknown resource")
		return
	}
	if r.URL.Query().Get("onlyMine") == "true" {
		user := requestUser(r)
		mine := records[:0]
		for _, rec := range records {
			if rec.CreatedBy.ID == user.ID {
				mine = append(mine, rec)
			}
		}
		records = mine
	}
	if records == nil {
		records = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid record payload")
		return
	}
	resource := requestResource(r)
	user := requestUser(r)

	var created domain.Record
	err := s.store.RunInTransaction(r.Context(), func(tx domain.Transaction) error {
		rec, err := tx.CreateRecord(resource, domain.Record{
			Fields:    req.Fields,
			CreatedBy: domain.Creator{ID: user.ID, Role: user.Role},
		})
		if err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		s.logger.Error("create record", zap.String("resource", resource), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "", "create failed")
		return
	}
	s.metrics.RecordWrites.WithLabelValues(resource, "create").Inc()
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid record payload")
		return
	}
	resource := requestResource(r)
	id := chi.URLParam(r, "id")

	var updated domain.Record
	err := s.store.RunInTransaction(r.Context(), func(tx domain.Transaction) error {
		rec, err := tx.UpdateRecord(resource, id, func(rec *domain.Record) error {
			rec.Fields = req.Fields
			return nil
		})
		if err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		s.writeStoreError(w, resource, "update record", err)
		return
	}
	s.metrics.RecordWrites.WithLabelValues(resource, "update").Inc()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	resource := requestResource(r)
	id := chi.URLParam(r, "id")

	err := s.store.RunInTransaction(r.Context(), func(tx domain.Transaction) error {
		return tx.DeleteRecord(resource, id)
	})
	if err != nil {
		s.writeStoreError(w, resource, "delete record", err)
		return
	}
	s.metrics.RecordWrites.WithLabelValues(resource, "delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}

type attachmentRequest struct {
	Attachment string `json:"attachment"`
}

func (s *Server) handleUpdateAttachment(w http.ResponseWriter, r *http.Request) {
	var req attachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid attachment payload")
		return
	}
	resource := requestResource(r)
	id := chi.URLParam(r, "id")

	var updated domain.Record
	err := s.store.RunInTransaction(r.Context(), func(tx domain.Transaction) error {
		rec, err := tx.UpdateRecord(resource, id, func(rec *domain.Record) error {
			rec.Attachment = req.Attachment
			return nil
		})
		if err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		s.writeStoreError(w, resource, "update attachment", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type reportRequest struct {
	Title          string                `json:"title"`
	SourceType     domain.EntityType     `json:"sourceType"`
	FilterCriteria domain.FilterCriteria `json:"filterCriteria"`
}

func (s *Server) handleSaveReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid report payload")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "", "title required")
		return
	}
	user := requestUser(r)

	var saved domain.Report
	err := s.store.RunInTransaction(r.Context(), func(tx domain.Transaction) error {
		report, err := tx.CreateReport(domain.Report{
			Title:      strings.TrimSpace(req.Title),
			SourceType: req.SourceType,
			Criteria:   req.FilterCriteria,
			CreatedBy:  domain.Creator{ID: user.ID, Role: user.Role},
		})
		if err != nil {
			return err
		}
		saved = report
		return nil
	})
	if err != nil {
		s.logger.Error("save report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "", "save failed")
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListReports(w http.ResponseWriter, _ *http.Request) {
	reports := s.store.ListReports()
	if reports == nil {
		reports = []domain.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleDataUsage(w http.ResponseWriter, _ *http.Request) {
	tables := s.store.UsageCounts()
	total := 0
	for _, count := range tables {
		total += count
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables, "total": total})
}

func (s *Server) handleTableUsage(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	counts := s.store.UsageCounts()
	count, ok := counts[table]
	if !ok {
		writeError(w, http.StatusNotFound, "", "unknown table")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table, "count": count})
}

func (s *Server) handleUserUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, ok := s.store.FindUser(userID); !ok {
		writeError(w, http.StatusNotFound, "user_not_found", "no such user")
		return
	}
	tables := s.store.UsageByUser(userID)
	total := 0
	for _, count := range tables {
		total += count
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "tables": tables, "total": total})
}

func (s *Server) writeStoreError(w http.ResponseWriter, resource, op string, err error) {
	var notFound domain.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, "", notFound.Error())
		return
	}
	s.logger.Error(op, zap.String("resource", resource), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "", op+" failed")
}
