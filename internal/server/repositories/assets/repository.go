// Package assets stores asset catalog records. Every backend implements the
// same Repository so the service never branches on the storage engine.
package assets

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
)

// Repository is the metadata-store capability. Backends wrap engine errors
// with common.ErrMetadataFailure and report absent records with
// common.ErrorNotFound.
type Repository interface {
	// Put stores a record as given, replacing any record with the same
	// owner and filename.
	Put(ctx context.Context, asset *models.Asset) error
	Get(ctx context.Context, ownerID, filename string) (*models.Asset, error)
	// List returns the records of ownerID, or of every owner when ownerID
	// is empty.
	List(ctx context.Context, ownerID string) ([]*models.Asset, error)
	// AppendVariant atomically adds rec.Variant to the record's variant list
	// unless already present, creating the record when missing.
	AppendVariant(ctx context.Context, rec models.VariantRecord) error
	// SetFailure stores the last failed transcode of an existing record.
	SetFailure(ctx context.Context, ownerID, filename string, f models.Failure) error
}

func validateAsset(a *models.Asset) error {
	if a == nil || a.OwnerID == "" || a.Filename == "" {
		return fmt.Errorf("%w: asset owner and filename are required", common.ErrValidation)
	}
	return nil
}

func validateRecord(rec models.VariantRecord) error {
	if rec.OwnerID == "" || rec.Filename == "" || rec.Variant == "" {
		return fmt.Errorf("%w: owner, filename and variant are required", common.ErrValidation)
	}
	return nil
}

func metadataError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrMetadataFailure, op, err)
}

func cloneAsset(a *models.Asset) *models.Asset {
	c := *a
	c.Processed = append([]string{}, a.Processed...)
	if a.LastTranscodedAt != nil {
		t := *a.LastTranscodedAt
		c.LastTranscodedAt = &t
	}
	if a.LastFailure != nil {
		f := *a.LastFailure
		c.LastFailure = &f
	}
	return &c
}

// newAssetFromRecord is the record created when a variant is appended to an
// asset that has no catalog entry yet.
func newAssetFromRecord(rec models.VariantRecord) *models.Asset {
	at := rec.At
	return &models.Asset{
		OwnerID:          rec.OwnerID,
		Filename:         rec.Filename,
		StorageKey:       rec.StorageKey,
		Processed:        []string{rec.Variant},
		UploadedAt:       rec.At,
		LastTranscodedAt: &at,
	}
}
