package assets

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/dbx"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
// The variant list is a jsonb array.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const pgSelectAssets = `SELECT owner_id, filename, storage_key, checksum, size, processed, uploaded_at, last_transcoded_at, last_failure FROM assets`

// Put upserts a record by (owner_id, filename).
func (r *PostgresRepository) Put(ctx context.Context, a *models.Asset) error {
	if err := validateAsset(a); err != nil {
		return err
	}
	processed, err := encodeProcessed(a.Processed)
	if err != nil {
		return err
	}
	failure, err := encodeFailure(a.LastFailure)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO assets (owner_id, filename, storage_key, checksum, size, processed, uploaded_at, last_transcoded_at, last_failure)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9::jsonb)
		ON CONFLICT (owner_id, filename)
		DO UPDATE SET
			storage_key = EXCLUDED.storage_key,
			checksum = EXCLUDED.checksum,
			size = EXCLUDED.size,
			processed = EXCLUDED.processed,
			uploaded_at = EXCLUDED.uploaded_at,
			last_transcoded_at = EXCLUDED.last_transcoded_at,
			last_failure = EXCLUDED.last_failure
	`
	_, err = r.db.ExecContext(ctx, query,
		a.OwnerID, a.Filename, a.StorageKey, a.Checksum, a.Size, processed, a.UploadedAt, nullTime(a.LastTranscodedAt), failure)
	if err != nil {
		return metadataError("put asset", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID, filename string) (*models.Asset, error) {
	query := pgSelectAssets + ` WHERE owner_id = $1 AND filename = $2`
	a, err := scanPgAsset(r.db.QueryRowContext(ctx, query, ownerID, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, metadataError("get asset", err)
	}
	return a, nil
}

func (r *PostgresRepository) List(ctx context.Context, ownerID string) ([]*models.Asset, error) {
	query := pgSelectAssets + ` WHERE ($1 = '' OR owner_id = $1) ORDER BY owner_id, uploaded_at DESC, filename`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, metadataError("list assets", err)
	}
	defer rows.Close()

	var result []*models.Asset
	for rows.Next() {
		a, err := scanPgAsset(rows)
		if err != nil {
			return nil, metadataError("scan asset", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, metadataError("list assets", err)
	}
	return result, nil
}

// AppendVariant is a single upsert, so concurrent appends to one asset never
// lose each other.
func (r *PostgresRepository) AppendVariant(ctx context.Context, rec models.VariantRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	query := `
		INSERT INTO assets (owner_id, filename, storage_key, processed, uploaded_at, last_transcoded_at)
		VALUES ($1, $2, $3, jsonb_build_array($4::text), $5, $5)
		ON CONFLICT (owner_id, filename)
		DO UPDATE SET
			processed = CASE
				WHEN assets.processed @> jsonb_build_array($4::text) THEN assets.processed
				ELSE assets.processed || jsonb_build_array($4::text)
			END,
			last_transcoded_at = EXCLUDED.last_transcoded_at
	`
	if _, err := r.db.ExecContext(ctx, query, rec.OwnerID, rec.Filename, rec.StorageKey, rec.Variant, rec.At); err != nil {
		return metadataError("append variant", err)
	}
	return nil
}

func (r *PostgresRepository) SetFailure(ctx context.Context, ownerID, filename string, f models.Failure) error {
	failure, err := encodeFailure(&f)
	if err != nil {
		return err
	}
	query := `UPDATE assets SET last_failure = $3::jsonb WHERE owner_id = $1 AND filename = $2`
	res, err := r.db.ExecContext(ctx, query, ownerID, filename, failure)
	if err != nil {
		return metadataError("set failure", err)
	}
	ok, err := dbx.Affected(res)
	if err != nil {
		return metadataError("set failure", err)
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPgAsset(row rowScanner) (*models.Asset, error) {
	var (
		a           models.Asset
		processed   []byte
		transcoded  sql.NullTime
		lastFailure []byte
	)
	if err := row.Scan(&a.OwnerID, &a.Filename, &a.StorageKey, &a.Checksum, &a.Size,
		&processed, &a.UploadedAt, &transcoded, &lastFailure); err != nil {
		return nil, err
	}
	var err error
	if a.Processed, err = decodeProcessed(processed); err != nil {
		return nil, err
	}
	if a.LastFailure, err = decodeFailure(lastFailure); err != nil {
		return nil, err
	}
	if transcoded.Valid {
		t := transcoded.Time
		a.LastTranscodedAt = &t
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
