// Package importer loads spreadsheet exports into a record table. Each CSV
// row is validated through the entity schema and created individually;
// failures do not roll back rows already imported.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"coehub/internal/listctl"
	"coehub/pkg/domain"
)

// Creator is the backend slice the importer needs. *backend.Client and any
// listctl.Client satisfy it.
type Creator interface {
	Create(ctx context.Context, resource string, fields map[string]any) (domain.Record, error)
}

// RowError records why a single row was skipped. Line is 1-based and counts
// the header.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

// Summary reports the outcome of one import run.
type Summary struct {
	Created []domain.Record
	Failed  []RowError
}

// Importer maps CSV rows onto one entity schema.
type Importer struct {
	schema listctl.Schema
	client Creator
	logger *zap.Logger
}

// Option customizes an Importer.
type Option func(*Importer)

// WithLogger wires structured logging.
func WithLogger(l *zap.Logger) Option {
	return func(imp *Importer) {
		if l != nil {
			imp.logger = l
		}
	}
}

// New builds an importer for one entity schema.
func New(schema listctl.Schema, client Creator, opts ...Option) *Importer {
	imp := &Importer{schema: schema, client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Import reads a CSV stream whose header names schema fields and creates one
// record per data row. Unknown columns fail the whole run before any row is
// written; per-row validation and create failures are collected in the
// summary while the remaining rows continue.
func (imp *Importer) Import(ctx context.Context, r io.Reader) (Summary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return Summary{}, fmt.Errorf("importer: empty input")
	}
	if err != nil {
		return Summary{}, fmt.Errorf("importer: read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, ok := imp.schema.Field(name); !ok {
			return Summary{}, fmt.Errorf("importer: unknown column %q for %s", name, imp.schema.Resource())
		}
		columns[i] = name
	}

	var summary Summary
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			summary.Failed = append(summary.Failed, RowError{Line: line, Err: err})
			continue
		}
		if len(row) != len(columns) {
			summary.Failed = append(summary.Failed, RowError{
				Line: line,
				Err:  fmt.Errorf("expected %d columns, got %d", len(columns), len(row)),
			})
			continue
		}

		form := make(map[string]string, len(columns))
		for i, name := range columns {
			form[name] = strings.TrimSpace(row[i])
		}
		fields, err := imp.schema.Coerce(form)
		if err != nil {
			summary.Failed = append(summary.Failed, RowError{Line: line, Err: err})
			continue
		}

		created, err := imp.client.Create(ctx, imp.schema.Resource(), fields)
		if err != nil {
			imp.logger.Warn("import row rejected",
				zap.String("resource", imp.schema.Resource()),
				zap.Int("line", line),
				zap.Error(err),
			)
			summary.Failed = append(summary.Failed, RowError{Line: line, Err: err})
			continue
		}
		summary.Created = append(summary.Created, created)
	}
	return summary, nil
}
