package core

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/bulkio/internal/filestore"
	"github.com/JonMunkholm/bulkio/internal/format"
	"github.com/JonMunkholm/bulkio/internal/logging"
)

// exportWork returns the worker for an export.
func (s *Service) exportWork(def Definition, f format.Format, filters map[string]string, ids []string) WorkFunc {
	return func(ctx context.Context, t *Tracker) Outcome {
		return s.runExport(ctx, t, def, f, filters, ids)
	}
}

// runExport pages through the entity's records, renders them, and stores
// the artifact. Paging ends on a short page, on a page longer than the
// limit, or once the first page's total has been reached. Nothing is
// published unless every page was rendered; progress reaches 100 only when
// the artifact is stored.
func (s *Service) runExport(ctx context.Context, t *Tracker, def Definition, f format.Format, filters map[string]string, ids []string) Outcome {
	info := def.Info()
	logger := logging.WithFields(ctx,
		"job_id", t.ID(),
		"kind", KindExport,
		"entity_type", info.Name,
		"format", f,
	)
	start := time.Now()

	var buf bytes.Buffer
	w, err := format.NewWriter(&buf, f, columnNames(def.columns()))
	if err != nil {
		return FailedOutcome(pipelineFault("render", err))
	}
	// Failure paths still close the writer to release the workbook.
	closed := false
	defer func() {
		if !closed {
			_ = w.Close()
		}
	}()

	chunk := s.opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	req := FetchRequest{Filters: filters, IDs: ids, Limit: chunk}

	total := -1
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return FailedOutcome(pipelineFault("fetch", err))
		}

		req.Offset = processed
		rows, pageTotal, err := def.fetchPage(ctx, req)
		if err != nil {
			logger.Warn("export fetch failed", "offset", req.Offset, "error", err)
			return FailedOutcome(pipelineFault("fetch", err))
		}
		if total < 0 {
			total = pageTotal
			if s.opts.MaxRows > 0 && total > s.opts.MaxRows {
				return FailedOutcome(pipelineFault("fetch", fmt.Errorf("%d rows exceeds the export limit of %d", total, s.opts.MaxRows)))
			}
			t.SetTotal(total)
		}

		for _, row := range rows {
			if err := w.WriteRow(row); err != nil {
				return FailedOutcome(pipelineFault("render", err))
			}
		}
		processed += len(rows)
		if s.opts.MaxRows > 0 && processed > s.opts.MaxRows {
			return FailedOutcome(pipelineFault("fetch", fmt.Errorf("more than %d rows returned, over the export limit", s.opts.MaxRows)))
		}

		t.SetProcessed(processed)
		t.SetProgress(percentOf(processed, max(total, processed), 99))

		// A fetcher may ignore Offset and Limit and hand back everything at
		// once; a page longer than the limit is the whole result.
		if len(rows) < chunk || len(rows) > req.Limit {
			break
		}
		if total > 0 && processed >= total {
			break
		}
	}

	closed = true
	if err := w.Close(); err != nil {
		return FailedOutcome(pipelineFault("render", err))
	}
	exportRows.WithLabelValues(info.Name, string(f)).Add(float64(processed))

	name := exportFileName(info.Name, f, s.now())
	ref, err := s.store.Put(ctx, buf.Bytes(), filestore.Meta{
		Kind:        filestore.KindExport,
		Owner:       info.Name,
		Name:        name,
		ContentType: f.ContentType(),
	}, s.opts.ArtifactTTL)
	if err != nil {
		return FailedOutcome(pipelineFault("store artifact", err))
	}

	out := Outcome{
		Status:        StatusCompleted,
		Message:       fmt.Sprintf("%d rows exported", processed),
		DownloadRef:   ref,
		FileSizeBytes: int64(buf.Len()),
	}
	if meta, err := s.store.Stat(ctx, ref); err == nil && !meta.ExpiresAt.IsZero() {
		exp := meta.ExpiresAt
		out.ExpiresAt = &exp
	}

	logger.Info("export finished",
		"rows", processed,
		"file_size_bytes", buf.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func exportFileName(entity string, f format.Format, now time.Time) string {
	return fmt.Sprintf("%s-export-%s.%s", entity, now.UTC().Format("20060102-150405"), f.Extension())
}
