package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"lender-policy-review/internal/models"
)

// ErrIngestionNotFound is returned when no ledger row matches.
var ErrIngestionNotFound = errors.New("ingestion not found")

const ingestionColumns = `id, s3_key, etag, filename, size_bytes, status,
	COALESCE(extraction_id, ''), COALESCE(extraction_status, ''), COALESCE(archive_key, ''), COALESCE(error, ''),
	attempts, created_at, updated_at`

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS policy_ingestions (
		id                BIGSERIAL PRIMARY KEY,
		s3_key            TEXT NOT NULL,
		etag              TEXT NOT NULL DEFAULT '',
		filename          TEXT NOT NULL,
		size_bytes        BIGINT NOT NULL DEFAULT 0,
		status            TEXT NOT NULL,
		extraction_id     TEXT,
		extraction_status TEXT,
		archive_key       TEXT,
		error             TEXT,
		attempts          INTEGER NOT NULL DEFAULT 1,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (s3_key, etag)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_policy_ingestions_status ON policy_ingestions (status)`,
	`CREATE INDEX IF NOT EXISTS idx_policy_ingestions_created_at ON policy_ingestions (created_at DESC)`,
}

// DefaultClaimTimeout matches the longest a Lambda invocation can run.
const DefaultClaimTimeout = 15 * time.Minute

// IngestionRepository records which S3 objects were sent for extraction.
type IngestionRepository struct {
	db           *DB
	claimTimeout time.Duration
}

// IngestionOption configures an IngestionRepository.
type IngestionOption func(*IngestionRepository)

// WithClaimTimeout sets how long a received row stays claimed before a
// redelivery may take it over.
func WithClaimTimeout(d time.Duration) IngestionOption {
	return func(r *IngestionRepository) { r.claimTimeout = d }
}

// NewIngestionRepository creates a new ingestion repository.
func NewIngestionRepository(db *DB, opts ...IngestionOption) *IngestionRepository {
	r := &IngestionRepository{db: db, claimTimeout: DefaultClaimTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureSchema creates the ledger table if it does not exist.
func (r *IngestionRepository) EnsureSchema(ctx context.Context) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}

// Claim records an object as received. It returns false when the same
// object version was already claimed and has not failed, so S3 event
// redeliveries are processed once. Failed rows are reclaimed for retry, as
// are received rows older than the claim timeout, whose invocation died
// before recording an outcome.
func (r *IngestionRepository) Claim(ctx context.Context, key, etag, filename string, size int64) (*models.Ingestion, bool, error) {
	query := `
		INSERT INTO policy_ingestions (s3_key, etag, filename, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (s3_key, etag) DO UPDATE SET
			status = EXCLUDED.status,
			error = NULL,
			attempts = policy_ingestions.attempts + 1,
			updated_at = NOW()
		WHERE policy_ingestions.status = $6
			OR (policy_ingestions.status = $5 AND policy_ingestions.updated_at < NOW() - make_interval(secs => $7))
		RETURNING ` + ingestionColumns

	row := r.db.pool.QueryRow(ctx, query, key, etag, filename, size,
		string(models.IngestionStatusReceived), string(models.IngestionStatusFailed),
		r.claimTimeout.Seconds())
	ing, err := scanIngestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim ingestion: %w", err)
	}
	return ing, true, nil
}

// MarkExtracted records the extraction created for an ingestion.
func (r *IngestionRepository) MarkExtracted(ctx context.Context, id int64, extractionID, extractionStatus, archiveKey string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE policy_ingestions
		SET status = $2, extraction_id = $3, extraction_status = $4, archive_key = NULLIF($5, ''), updated_at = NOW()
		WHERE id = $1`,
		id, string(models.IngestionStatusExtracted), extractionID, extractionStatus, archiveKey,
	)
	if err != nil {
		return fmt.Errorf("failed to update ingestion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIngestionNotFound
	}
	return nil
}

// MarkFailed records why an ingestion could not be extracted.
func (r *IngestionRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE policy_ingestions
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1`,
		id, string(models.IngestionStatusFailed), reason,
	)
	if err != nil {
		return fmt.Errorf("failed to update ingestion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIngestionNotFound
	}
	return nil
}

// GetByS3Key returns the most recent ledger row for key.
func (r *IngestionRepository) GetByS3Key(ctx context.Context, key string) (*models.Ingestion, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+ingestionColumns+`
		FROM policy_ingestions
		WHERE s3_key = $1
		ORDER BY created_at DESC
		LIMIT 1`, key)

	ing, err := scanIngestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIngestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion: %w", err)
	}
	return ing, nil
}

// ListRecent returns the newest ledger rows.
func (r *IngestionRepository) ListRecent(ctx context.Context, limit int) ([]*models.Ingestion, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT `+ingestionColumns+`
		FROM policy_ingestions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestions: %w", err)
	}
	defer rows.Close()

	var out []*models.Ingestion
	for rows.Next() {
		ing, err := scanIngestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ingestion: %w", err)
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

func scanIngestion(row pgx.Row) (*models.Ingestion, error) {
	var ing models.Ingestion
	var status string
	err := row.Scan(
		&ing.ID,
		&ing.S3Key,
		&ing.ETag,
		&ing.Filename,
		&ing.SizeBytes,
		&status,
		&ing.ExtractionID,
		&ing.ExtractionStatus,
		&ing.ArchiveKey,
		&ing.Error,
		&ing.Attempts,
		&ing.CreatedAt,
		&ing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ing.Status = models.IngestionStatus(status)
	return &ing, nil
}
