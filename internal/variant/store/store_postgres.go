package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"varreg/internal/variant/models"
	"varreg/pkg/sentinel"
)

const uniqueViolation = "23505"

// Schema for the registry tables. The partial unique index on hash enforces
// the single-active-record-per-canonical-key invariant at the storage layer.
const schema = `
CREATE TABLE IF NOT EXISTS clustered_variants (
	accession     BIGINT PRIMARY KEY,
	assembly      TEXT NOT NULL,
	contig        TEXT NOT NULL,
	start_pos     BIGINT NOT NULL,
	variant_type  TEXT NOT NULL,
	validated     BOOLEAN NOT NULL DEFAULT FALSE,
	status        TEXT NOT NULL DEFAULT 'ACTIVE',
	merged_into   BIGINT,
	hash          TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS clustered_variants_active_hash
	ON clustered_variants (hash) WHERE status = 'ACTIVE';
CREATE INDEX IF NOT EXISTS clustered_variants_assembly
	ON clustered_variants (assembly, accession);

CREATE TABLE IF NOT EXISTS submitted_variants (
	accession             BIGINT PRIMARY KEY,
	project               TEXT NOT NULL,
	assembly              TEXT NOT NULL,
	contig                TEXT NOT NULL,
	start_pos             BIGINT NOT NULL,
	reference_allele      TEXT NOT NULL,
	alternate_allele      TEXT NOT NULL,
	clustered_accession   BIGINT,
	supported_by_evidence BOOLEAN NOT NULL DEFAULT TRUE,
	assembly_match        BOOLEAN NOT NULL DEFAULT TRUE,
	alleles_match         BOOLEAN NOT NULL DEFAULT TRUE,
	validated             BOOLEAN NOT NULL DEFAULT FALSE,
	hash                  TEXT NOT NULL UNIQUE,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS submitted_variants_clustered
	ON submitted_variants (clustered_accession);

CREATE SEQUENCE IF NOT EXISTS variant_accession_seq START WITH 5000000000;
`

// EnsureSchema applies the registry DDL. Statements are idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply registry schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresClusteredStore persists clustered variants. Pure I/O; merge policy
// stays in the clustering service.
type PostgresClusteredStore struct {
	db *sql.DB
}

func NewPostgresClusteredStore(db *sql.DB) *PostgresClusteredStore {
	return &PostgresClusteredStore{db: db}
}

func (s *PostgresClusteredStore) Upsert(ctx context.Context, cv models.ClusteredVariant) error {
	query := `
		INSERT INTO clustered_variants
			(accession, assembly, contig, start_pos, variant_type, validated, status, merged_into, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (accession) DO UPDATE SET
			assembly = EXCLUDED.assembly,
			contig = EXCLUDED.contig,
			start_pos = EXCLUDED.start_pos,
			variant_type = EXCLUDED.variant_type,
			validated = EXCLUDED.validated,
			status = EXCLUDED.status,
			merged_into = EXCLUDED.merged_into,
			hash = EXCLUDED.hash
	`
	_, err := s.db.ExecContext(ctx, query,
		int64(cv.Accession), cv.Assembly, cv.Contig, cv.Start, string(cv.Type),
		cv.Validated, string(cv.Status), mergedIntoValue(cv.MergedInto), cv.Key().Hash(), cv.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("upsert clustered variant %d: %w", cv.Accession, sentinel.ErrConflict)
		}
		return fmt.Errorf("upsert clustered variant %d: %w", cv.Accession, err)
	}
	return nil
}

func (s *PostgresClusteredStore) FindByAccession(ctx context.Context, accession uint64) (models.ClusteredVariant, error) {
	row := s.db.QueryRowContext(ctx, selectClustered+` WHERE accession = $1`, int64(accession))
	return scanClustered(row)
}

func (s *PostgresClusteredStore) FindActiveByHash(ctx context.Context, hash string) (models.ClusteredVariant, error) {
	row := s.db.QueryRowContext(ctx, selectClustered+` WHERE hash = $1 AND status = 'ACTIVE'`, hash)
	return scanClustered(row)
}

func (s *PostgresClusteredStore) BulkInsert(ctx context.Context, cvs []models.ClusteredVariant) (BulkResult, error) {
	var res BulkResult
	query := `
		INSERT INTO clustered_variants
			(accession, assembly, contig, start_pos, variant_type, validated, status, merged_into, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`
	for _, cv := range cvs {
		result, err := s.db.ExecContext(ctx, query,
			int64(cv.Accession), cv.Assembly, cv.Contig, cv.Start, string(cv.Type),
			cv.Validated, string(cv.Status), mergedIntoValue(cv.MergedInto), cv.Key().Hash(), cv.CreatedAt,
		)
		if err != nil {
			return res, fmt.Errorf("bulk insert clustered variant %d: %w", cv.Accession, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return res, fmt.Errorf("bulk insert clustered variant %d: %w", cv.Accession, err)
		}
		if n == 0 {
			res.DuplicateKeys = append(res.DuplicateKeys, cv.Key().Hash())
			continue
		}
		res.Inserted++
	}
	return res, nil
}

func (s *PostgresClusteredStore) ListByAssembly(ctx context.Context, assembly string) ([]models.ClusteredVariant, error) {
	rows, err := s.db.QueryContext(ctx, selectClustered+` WHERE assembly = $1 ORDER BY accession`, assembly)
	if err != nil {
		return nil, fmt.Errorf("list clustered variants for %s: %w", assembly, err)
	}
	defer rows.Close()

	var out []models.ClusteredVariant
	for rows.Next() {
		cv, err := scanClustered(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cv)
	}
	return out, rows.Err()
}

const selectClustered = `
	SELECT accession, assembly, contig, start_pos, variant_type, validated, status, merged_into, created_at
	FROM clustered_variants`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClustered(row rowScanner) (models.ClusteredVariant, error) {
	var cv models.ClusteredVariant
	var accession int64
	var variantType, status string
	var mergedInto sql.NullInt64
	err := row.Scan(&accession, &cv.Assembly, &cv.Contig, &cv.Start, &variantType,
		&cv.Validated, &status, &mergedInto, &cv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ClusteredVariant{}, ErrNotFound
		}
		return models.ClusteredVariant{}, fmt.Errorf("scan clustered variant: %w", err)
	}
	cv.Accession = uint64(accession)
	cv.Type = models.VariantType(variantType)
	cv.Status = models.Status(status)
	if mergedInto.Valid {
		v := uint64(mergedInto.Int64)
		cv.MergedInto = &v
	}
	return cv, nil
}

func mergedIntoValue(mergedInto *uint64) any {
	if mergedInto == nil {
		return nil
	}
	return int64(*mergedInto)
}

// PostgresSubmittedStore persists submitted variants.
type PostgresSubmittedStore struct {
	db *sql.DB
}

func NewPostgresSubmittedStore(db *sql.DB) *PostgresSubmittedStore {
	return &PostgresSubmittedStore{db: db}
}

func (s *PostgresSubmittedStore) Save(ctx context.Context, sv models.SubmittedVariant) error {
	query := `
		INSERT INTO submitted_variants
			(accession, project, assembly, contig, start_pos, reference_allele, alternate_allele,
			 clustered_accession, supported_by_evidence, assembly_match, alleles_match, validated, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (accession) DO UPDATE SET
			clustered_accession = EXCLUDED.clustered_accession,
			supported_by_evidence = EXCLUDED.supported_by_evidence,
			assembly_match = EXCLUDED.assembly_match,
			alleles_match = EXCLUDED.alleles_match,
			validated = EXCLUDED.validated
	`
	_, err := s.db.ExecContext(ctx, query,
		int64(sv.Accession), sv.ProjectAccession, sv.Assembly, sv.Contig, sv.Start,
		sv.Reference, sv.Alternate, mergedIntoValue(sv.ClusteredAccession),
		sv.SupportedByEvidence, sv.AssemblyMatch, sv.AllelesMatch, sv.Validated,
		sv.Hash(), sv.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save submitted variant %d: %w", sv.Accession, sentinel.ErrConflict)
		}
		return fmt.Errorf("save submitted variant %d: %w", sv.Accession, err)
	}
	return nil
}

func (s *PostgresSubmittedStore) FindByAccession(ctx context.Context, accession uint64) (models.SubmittedVariant, error) {
	row := s.db.QueryRowContext(ctx, selectSubmitted+` WHERE accession = $1`, int64(accession))
	return scanSubmitted(row)
}

func (s *PostgresSubmittedStore) FindByClusteredAccession(ctx context.Context, clustered uint64) ([]models.SubmittedVariant, error) {
	rows, err := s.db.QueryContext(ctx, selectSubmitted+` WHERE clustered_accession = $1 ORDER BY accession`, int64(clustered))
	if err != nil {
		return nil, fmt.Errorf("list submitted variants for rs%d: %w", clustered, err)
	}
	defer rows.Close()

	var out []models.SubmittedVariant
	for rows.Next() {
		sv, err := scanSubmitted(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *PostgresSubmittedStore) BulkInsert(ctx context.Context, svs []models.SubmittedVariant) (BulkResult, error) {
	var res BulkResult
	query := `
		INSERT INTO submitted_variants
			(accession, project, assembly, contig, start_pos, reference_allele, alternate_allele,
			 clustered_accession, supported_by_evidence, assembly_match, alleles_match, validated, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`
	for _, sv := range svs {
		result, err := s.db.ExecContext(ctx, query,
			int64(sv.Accession), sv.ProjectAccession, sv.Assembly, sv.Contig, sv.Start,
			sv.Reference, sv.Alternate, mergedIntoValue(sv.ClusteredAccession),
			sv.SupportedByEvidence, sv.AssemblyMatch, sv.AllelesMatch, sv.Validated,
			sv.Hash(), sv.CreatedAt,
		)
		if err != nil {
			return res, fmt.Errorf("bulk insert submitted variant %d: %w", sv.Accession, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return res, fmt.Errorf("bulk insert submitted variant %d: %w", sv.Accession, err)
		}
		if n == 0 {
			res.DuplicateKeys = append(res.DuplicateKeys, sv.Hash())
			continue
		}
		res.Inserted++
	}
	return res, nil
}

func (s *PostgresSubmittedStore) ReassignClustered(ctx context.Context, from, to uint64) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE submitted_variants SET clustered_accession = $2 WHERE clustered_accession = $1`,
		int64(from), int64(to))
	if err != nil {
		return 0, fmt.Errorf("reassign rs%d to rs%d: %w", from, to, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reassign rs%d to rs%d: %w", from, to, err)
	}
	return int(n), nil
}

func (s *PostgresSubmittedStore) SetClusteredAccession(ctx context.Context, accession, clustered uint64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE submitted_variants SET clustered_accession = $2 WHERE accession = $1`,
		int64(accession), int64(clustered))
	if err != nil {
		return fmt.Errorf("set clustered accession on ss%d: %w", accession, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set clustered accession on ss%d: %w", accession, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectSubmitted = `
	SELECT accession, project, assembly, contig, start_pos, reference_allele, alternate_allele,
	       clustered_accession, supported_by_evidence, assembly_match, alleles_match, validated, created_at
	FROM submitted_variants`

func scanSubmitted(row rowScanner) (models.SubmittedVariant, error) {
	var sv models.SubmittedVariant
	var accession int64
	var clustered sql.NullInt64
	err := row.Scan(&accession, &sv.ProjectAccession, &sv.Assembly, &sv.Contig, &sv.Start,
		&sv.Reference, &sv.Alternate, &clustered,
		&sv.SupportedByEvidence, &sv.AssemblyMatch, &sv.AllelesMatch, &sv.Validated, &sv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SubmittedVariant{}, ErrNotFound
		}
		return models.SubmittedVariant{}, fmt.Errorf("scan submitted variant: %w", err)
	}
	sv.Accession = uint64(accession)
	if clustered.Valid {
		v := uint64(clustered.Int64)
		sv.ClusteredAccession = &v
	}
	return sv, nil
}

// PostgresAccessionSource mints accessions from a database sequence so values
// survive restarts and are never reused across jobs.
type PostgresAccessionSource struct {
	db *sql.DB
}

func NewPostgresAccessionSource(db *sql.DB) *PostgresAccessionSource {
	return &PostgresAccessionSource{db: db}
}

func (s *PostgresAccessionSource) Next(ctx context.Context) (uint64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('variant_accession_seq')`).Scan(&v); err != nil {
		return 0, fmt.Errorf("next accession: %w", err)
	}
	return uint64(v), nil
}
