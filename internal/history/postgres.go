package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger stores records in the job_history table.
type PostgresLedger struct {
	db DBTX
}

// NewPostgresLedger creates a ledger on db.
func NewPostgresLedger(db DBTX) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const recordColumns = `job_id, kind, entity_type, status, format, strategy, file_name,
	file_size_bytes, total_rows, processed_rows, success_count, updated_count,
	skipped_count, error_count, error_report_id, download_ref, applied_filters,
	triggered_by, message, started_at, completed_at, expires_at`

func (l *PostgresLedger) Record(ctx context.Context, rec Record) error {
	filters, err := json.Marshal(nonNilFilters(rec.Filters))
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}

	query := `INSERT INTO job_history (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err = l.db.Exec(ctx, query,
		rec.JobID, string(rec.Kind), rec.EntityType, rec.Status, rec.Format, rec.Strategy, rec.FileName,
		rec.FileSizeBytes, rec.TotalRows, rec.ProcessedRows, rec.SuccessCount, rec.UpdatedCount,
		rec.SkippedCount, rec.ErrorCount, rec.ErrorReportID, rec.DownloadRef, filters,
		rec.TriggeredBy, rec.Message, rec.StartedAt, rec.CompletedAt, rec.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (l *PostgresLedger) AttachArtifact(ctx context.Context, jobID string, kind ArtifactKind, ref string) error {
	var (
		column string
		want   Kind
	)
	switch kind {
	case ArtifactErrorReport:
		column, want = "error_report_id", KindImport
	case ArtifactDownload:
		column, want = "download_ref", KindExport
	default:
		return ErrInvalidArtifact
	}

	query := fmt.Sprintf(`UPDATE job_history SET %s = $2
		WHERE job_id = $1 AND kind = $3 AND %s = ''`, column, column)

	tag, err := l.db.Exec(ctx, query, jobID, ref, string(want))
	if err != nil {
		return fmt.Errorf("attach artifact: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: work out why.
	rec, err := l.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := slotFor(rec.Kind, kind); err != nil {
		return err
	}
	return ErrArtifactAttached
}

func (l *PostgresLedger) Get(ctx context.Context, jobID string) (*Record, error) {
	row := l.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM job_history WHERE job_id = $1`, jobID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get history record: %w", err)
	}
	return rec, nil
}

func (l *PostgresLedger) Query(ctx context.Context, f Filter, page, pageSize int) (*Page, error) {
	page, pageSize = NormalizePage(page, pageSize)
	where, args := buildWhere(f)

	var total int64
	if err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM job_history `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count history records: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM job_history %s
		ORDER BY completed_at DESC, job_id DESC
		LIMIT $%d OFFSET $%d`, recordColumns, where, n+1, n+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history records: %w", err)
	}
	defer rows.Close()

	result := &Page{Items: []Record{}, TotalCount: total, Page: page, PageSize: pageSize}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		result.Items = append(result.Items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history records: %w", err)
	}
	return result, nil
}

func buildWhere(f Filter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(column, value string) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if f.EntityType != "" {
		add("entity_type", f.EntityType)
	}
	if f.Kind != "" {
		add("kind", string(f.Kind))
	}
	if f.Status != "" {
		add("status", f.Status)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec     Record
		kind    string
		filters []byte
	)
	err := row.Scan(
		&rec.JobID, &kind, &rec.EntityType, &rec.Status, &rec.Format, &rec.Strategy, &rec.FileName,
		&rec.FileSizeBytes, &rec.TotalRows, &rec.ProcessedRows, &rec.SuccessCount, &rec.UpdatedCount,
		&rec.SkippedCount, &rec.ErrorCount, &rec.ErrorReportID, &rec.DownloadRef, &filters,
		&rec.TriggeredBy, &rec.Message, &rec.StartedAt, &rec.CompletedAt, &rec.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Kind = Kind(kind)
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &rec.Filters); err != nil {
			return nil, fmt.Errorf("decode filters: %w", err)
		}
		if len(rec.Filters) == 0 {
			rec.Filters = nil
		}
	}
	return &rec, nil
}

func nonNilFilters(f map[string]string) map[string]string {
	if f == nil {
		return map[string]string{}
	}
	return f
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
