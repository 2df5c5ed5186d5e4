package core

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/JonMunkholm/bulkio/internal/filestore"
	"github.com/JonMunkholm/bulkio/internal/format"
	"github.com/JonMunkholm/bulkio/internal/logging"
)

// ContextCheckInterval is how often, in rows, the import loop checks for
// cancellation.
var ContextCheckInterval = 100

// failedRow is one entry of the error collection.
type failedRow struct {
	err  *RowError
	keys []string
}

// importWork returns the worker for an import whose upload is staged
// under stagedRef. The staged copy is deleted when the worker finishes.
func (s *Service) importWork(def Definition, stagedRef, fileName string, strategy Strategy) WorkFunc {
	return func(ctx context.Context, t *Tracker) Outcome {
		defer func() {
			if err := s.store.Delete(context.Background(), stagedRef); err != nil {
				s.logger.Warn("staged upload not removed", "job_id", t.ID(), "ref", stagedRef, "error", err)
			}
		}()

		obj, err := s.store.Get(ctx, stagedRef)
		if err != nil {
			return FailedOutcome(pipelineFault("read upload", err))
		}
		return s.runImport(ctx, t, def, obj.Data, fileName, strategy)
	}
}

// runImport parses data and hands every row to the entity's processor in
// file order. Row failures are collected, never fatal. The job fails only
// when the file cannot be parsed or the pipeline itself breaks.
func (s *Service) runImport(ctx context.Context, t *Tracker, def Definition, data []byte, fileName string, strategy Strategy) Outcome {
	info := def.Info()
	logger := logging.WithFields(ctx,
		"job_id", t.ID(),
		"kind", KindImport,
		"entity_type", info.Name,
	)
	start := time.Now()

	sheet, err := format.Parse(bytes.NewReader(data), fileName, format.ParseOptions{
		Required:            requiredColumns(def.columns()),
		Known:               columnNames(def.columns()),
		MaxHeaderSearchRows: s.opts.MaxHeaderSearchRows,
	})
	if err != nil {
		logger.Warn("import parse failed", "file_name", fileName, "error", err)
		return FailedOutcome(err)
	}

	t.SetTotal(len(sheet.Rows))
	logger.Info("import started", "file_name", fileName, "total_rows", len(sheet.Rows), "strategy", strategy)

	var failures []failedRow
	for i, row := range sheet.Rows {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return FailedOutcome(pipelineFault(fmt.Sprintf("stopped at row %d", row.Number), err))
			}
		}

		out := safeProcessRow(ctx, def, RowContext{
			EntityType: info.Name,
			JobID:      t.ID(),
			Strategy:   strategy,
			Row:        row,
		})
		if !out.Success {
			failures = append(failures, failedRow{
				err:  asRowError(out.Err, row.Number),
				keys: keyValues(def.keyFields(), row),
			})
		}
		t.RecordRow(out)
		importRows.WithLabelValues(info.Name, outcomeLabel(out)).Inc()
	}

	job := t.Job()
	outcome := Completed(fmt.Sprintf("%d created, %d updated, %d skipped, %d failed",
		job.SuccessCount, job.UpdatedCount, job.SkippedCount, job.ErrorCount))

	if len(failures) > 0 {
		ref, err := s.storeErrorReport(ctx, info.Name, t.ID(), def.keyFields(), failures)
		if err != nil {
			return FailedOutcome(pipelineFault("store error report", err))
		}
		outcome.ErrorReportID = ref
	}

	logger.Info("import finished",
		"success_count", job.SuccessCount,
		"updated_count", job.UpdatedCount,
		"skipped_count", job.SkippedCount,
		"error_count", job.ErrorCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcome
}

// safeProcessRow runs the processor for one row. A panic is recorded as a
// system failure of that row.
func safeProcessRow(ctx context.Context, def Definition, rc RowContext) (out RowOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("row processor panicked",
				"job_id", rc.JobID,
				"entity_type", rc.EntityType,
				"row", rc.Row.Number,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			out = Failed(SystemError("unexpected error: %v", r))
		}
	}()
	return def.processRow(ctx, rc)
}

// errorReportColumns is the header of an error report: the row number, the
// entity's key fields, then the failure detail.
func errorReportColumns(keyFields []string) []string {
	cols := make([]string, 0, len(keyFields)+4)
	cols = append(cols, "row")
	cols = append(cols, keyFields...)
	return append(cols, "category", "column", "message")
}

func (s *Service) storeErrorReport(ctx context.Context, entity, jobID string, keyFields []string, failures []failedRow) (string, error) {
	table := format.Table{Columns: errorReportColumns(keyFields)}
	for _, f := range failures {
		row := make([]string, 0, len(table.Columns))
		row = append(row, strconv.Itoa(f.err.Row))
		row = append(row, f.keys...)
		row = append(row, string(f.err.Category), f.err.Column, f.err.Message)
		table.Rows = append(table.Rows, row)
	}

	var buf bytes.Buffer
	if err := format.Render(&buf, format.DelimitedText, table); err != nil {
		return "", err
	}
	return s.store.Put(ctx, buf.Bytes(), filestore.Meta{
		Kind:        filestore.KindErrorReport,
		Owner:       entity,
		Name:        fmt.Sprintf("%s-errors-%s.csv", entity, jobID),
		ContentType: format.DelimitedText.ContentType(),
	}, s.opts.ErrorReportTTL)
}

func keyValues(keyFields []string, row format.Row) []string {
	out := make([]string, len(keyFields))
	for i, k := range keyFields {
		out[i] = row.Get(k)
	}
	return out
}

func outcomeLabel(out RowOutcome) string {
	switch {
	case !out.Success:
		return "failed"
	case out.Skip:
		return "skipped"
	case out.Update:
		return "updated"
	default:
		return "created"
	}
}
