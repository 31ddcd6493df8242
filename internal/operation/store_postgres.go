package operation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS variant_operations (
	id          TEXT PRIMARY KEY,
	event_type  TEXT NOT NULL,
	accession   BIGINT NOT NULL,
	destination BIGINT,
	reason      TEXT NOT NULL DEFAULT '',
	assembly    TEXT NOT NULL,
	inactive    JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS variant_operations_accession
	ON variant_operations (accession);
CREATE INDEX IF NOT EXISTS variant_operations_type_assembly
	ON variant_operations (event_type, assembly, accession);
`

// EnsureSchema applies the history DDL. Statements are idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply operation schema: %w", err)
	}
	return nil
}

// PostgresStore persists the operation history. ON CONFLICT DO NOTHING on the
// primary key gives the idempotent-append behavior the Store contract asks
// for.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, op Operation) error {
	inactive, err := json.Marshal(op.Inactive)
	if err != nil {
		return fmt.Errorf("marshal operation snapshot: %w", err)
	}
	var destination any
	if op.Destination != nil {
		destination = int64(*op.Destination)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO variant_operations (id, event_type, accession, destination, reason, assembly, inactive, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		op.ID, string(op.EventType), int64(op.Accession), destination, op.Reason, op.Assembly, inactive, op.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append operation %s: %w", op.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListByAccession(ctx context.Context, accession uint64) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx, selectOperation+` WHERE accession = $1 ORDER BY created_at`, int64(accession))
	if err != nil {
		return nil, fmt.Errorf("list operations for %d: %w", accession, err)
	}
	return collect(rows)
}

func (s *PostgresStore) ListByTypeAndAssembly(ctx context.Context, eventType EventType, assembly string) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		selectOperation+` WHERE event_type = $1 AND assembly = $2 ORDER BY accession`,
		string(eventType), assembly)
	if err != nil {
		return nil, fmt.Errorf("list %s operations for %s: %w", eventType, assembly, err)
	}
	return collect(rows)
}

func (s *PostgresStore) DeleteByTypeAndAssembly(ctx context.Context, eventTypes []EventType, assembly string) (int, error) {
	types := make([]string, len(eventTypes))
	for i, t := range eventTypes {
		types[i] = string(t)
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM variant_operations WHERE event_type = ANY($1) AND assembly = $2`,
		pq.Array(types), assembly)
	if err != nil {
		return 0, fmt.Errorf("clear %v operations for %s: %w", eventTypes, assembly, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear %v operations for %s: %w", eventTypes, assembly, err)
	}
	return int(n), nil
}

const selectOperation = `
	SELECT id, event_type, accession, destination, reason, assembly, inactive, created_at
	FROM variant_operations`

func collect(rows *sql.Rows) ([]Operation, error) {
	defer rows.Close()
	var out []Operation
	for rows.Next() {
		var op Operation
		var eventType string
		var accession int64
		var destination sql.NullInt64
		var inactive []byte
		if err := rows.Scan(&op.ID, &eventType, &accession, &destination, &op.Reason, &op.Assembly, &inactive, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.EventType = EventType(eventType)
		op.Accession = uint64(accession)
		if destination.Valid {
			v := uint64(destination.Int64)
			op.Destination = &v
		}
		if err := json.Unmarshal(inactive, &op.Inactive); err != nil {
			return nil, fmt.Errorf("unmarshal operation snapshot: %w", err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}
