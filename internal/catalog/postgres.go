package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/bulkio/internal/core"
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps records in the entity_records table with the field
// values in a JSONB payload.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, entity_type, natural_key, payload, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, rec Record, strategy core.Strategy) (SaveResult, error) {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	result := SaveCreated
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		// Serialise saves of one natural key; the key index is not unique.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.EntityType+"/"+rec.Key); err != nil {
			return fmt.Errorf("lock natural key: %w", err)
		}

		if strategy != core.StrategyCreateNew {
			var id string
			err := tx.QueryRow(ctx, `SELECT id FROM entity_records
				WHERE entity_type = $1 AND natural_key = $2
				ORDER BY created_at, id LIMIT 1`, rec.EntityType, rec.Key).Scan(&id)
			switch {
			case err == nil && strategy == core.StrategySkip:
				result = SaveSkipped
				return nil
			case err == nil:
				result = SaveUpdated
				_, err = tx.Exec(ctx, `UPDATE entity_records SET payload = $2, updated_at = now() WHERE id = $1`, id, payload)
				if err != nil {
					return fmt.Errorf("update record: %w", err)
				}
				return nil
			case !errors.Is(err, pgx.ErrNoRows):
				return fmt.Errorf("find record: %w", err)
			}
		}

		_, err := tx.Exec(ctx, `INSERT INTO entity_records (id, entity_type, natural_key, payload)
			VALUES ($1, $2, $3, $4)`, uuid.New().String(), rec.EntityType, rec.Key, payload)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func (s *PostgresStore) List(ctx context.Context, entityType string, q Query) ([]Record, int, error) {
	where, args := buildWhere(entityType, q)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM entity_records `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	query := `SELECT ` + recordColumns + ` FROM entity_records ` + where +
		` ORDER BY natural_key, created_at, id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}
	return out, total, nil
}

func buildWhere(entityType string, q Query) (string, []any) {
	args := []any{entityType}
	conditions := []string{"entity_type = $1"}

	cols := make([]string, 0, len(q.Filters))
	for col := range q.Filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		args = append(args, col, q.Filters[col])
		conditions = append(conditions,
			fmt.Sprintf("lower(payload->>$%d) = lower($%d)", len(args)-1, len(args)))
	}

	if len(q.IDs) > 0 {
		args = append(args, q.IDs)
		conditions = append(conditions,
			fmt.Sprintf("(id = ANY($%d) OR natural_key = ANY($%d))", len(args), len(args)))
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		payload []byte
	)
	if err := row.Scan(&rec.ID, &rec.EntityType, &rec.Key, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(payload, &rec.Fields); err != nil {
		return Record{}, fmt.Errorf("decode payload: %w", err)
	}
	return rec, nil
}
