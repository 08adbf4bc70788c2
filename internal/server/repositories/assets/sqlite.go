package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/dbx"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
)

// SQLiteRepository implements Repository on an embedded SQLite database. The
// variant list is a JSON array maintained with the JSON1 functions, and
// timestamps are fixed-width UTC text.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sqliteSelectAssets = `SELECT owner_id, filename, storage_key, checksum, size, processed, uploaded_at, last_transcoded_at, last_failure FROM assets`

func (r *SQLiteRepository) Put(ctx context.Context, a *models.Asset) error {
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
	var transcoded sql.NullString
	if a.LastTranscodedAt != nil {
		transcoded = sql.NullString{String: formatTime(*a.LastTranscodedAt), Valid: true}
	}

	query := `
		INSERT INTO assets (owner_id, filename, storage_key, checksum, size, processed, uploaded_at, last_transcoded_at, last_failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, filename) DO UPDATE SET
			storage_key = excluded.storage_key,
			checksum = excluded.checksum,
			size = excluded.size,
			processed = excluded.processed,
			uploaded_at = excluded.uploaded_at,
			last_transcoded_at = excluded.last_transcoded_at,
			last_failure = excluded.last_failure
	`
	_, err = r.db.ExecContext(ctx, query,
		a.OwnerID, a.Filename, a.StorageKey, a.Checksum, a.Size, processed, formatTime(a.UploadedAt), transcoded, failure)
	if err != nil {
		return metadataError("put asset", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, ownerID, filename string) (*models.Asset, error) {
	query := sqliteSelectAssets + ` WHERE owner_id = ? AND filename = ?`
	a, err := scanSQLiteAsset(r.db.QueryRowContext(ctx, query, ownerID, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, metadataError("get asset", err)
	}
	return a, nil
}

func (r *SQLiteRepository) List(ctx context.Context, ownerID string) ([]*models.Asset, error) {
	query := sqliteSelectAssets + ` WHERE (? = '' OR owner_id = ?) ORDER BY owner_id, uploaded_at DESC, filename`
	rows, err := r.db.QueryContext(ctx, query, ownerID, ownerID)
	if err != nil {
		return nil, metadataError("list assets", err)
	}
	defer rows.Close()

	var result []*models.Asset
	for rows.Next() {
		a, err := scanSQLiteAsset(rows)
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

func (r *SQLiteRepository) AppendVariant(ctx context.Context, rec models.VariantRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	at := formatTime(rec.At)
	query := `
		INSERT INTO assets (owner_id, filename, storage_key, processed, uploaded_at, last_transcoded_at)
		VALUES (?, ?, ?, json_array(?), ?, ?)
		ON CONFLICT(owner_id, filename) DO UPDATE SET
			processed = CASE
				WHEN EXISTS (SELECT 1 FROM json_each(assets.processed) WHERE json_each.value = ?) THEN assets.processed
				ELSE json_insert(assets.processed, '$[#]', ?)
			END,
			last_transcoded_at = excluded.last_transcoded_at
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.OwnerID, rec.Filename, rec.StorageKey, rec.Variant, at, at, rec.Variant, rec.Variant)
	if err != nil {
		return metadataError("append variant", err)
	}
	return nil
}

func (r *SQLiteRepository) SetFailure(ctx context.Context, ownerID, filename string, f models.Failure) error {
	failure, err := encodeFailure(&f)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE assets SET last_failure = ? WHERE owner_id = ? AND filename = ?`,
		failure, ownerID, filename)
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

func scanSQLiteAsset(row rowScanner) (*models.Asset, error) {
	var (
		a           models.Asset
		processed   string
		uploadedAt  string
		transcoded  sql.NullString
		lastFailure sql.NullString
	)
	if err := row.Scan(&a.OwnerID, &a.Filename, &a.StorageKey, &a.Checksum, &a.Size,
		&processed, &uploadedAt, &transcoded, &lastFailure); err != nil {
		return nil, err
	}

	var err error
	if a.Processed, err = decodeProcessed([]byte(processed)); err != nil {
		return nil, err
	}
	if a.UploadedAt, err = parseTime(uploadedAt); err != nil {
		return nil, fmt.Errorf("parse uploaded_at: %w", err)
	}
	if transcoded.Valid {
		t, err := parseTime(transcoded.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_transcoded_at: %w", err)
		}
		a.LastTranscodedAt = &t
	}
	if lastFailure.Valid {
		if a.LastFailure, err = decodeFailure([]byte(lastFailure.String)); err != nil {
			return nil, err
		}
	}
	return &a, nil
}
