package assets

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
)

type assetKey struct {
	owner, filename string
}

// MemoryRepository keeps records in process memory. It is used for
// development and tests; records are lost on restart.
type MemoryRepository struct {
	mu     sync.RWMutex
	assets map[assetKey]*models.Asset
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{assets: make(map[assetKey]*models.Asset)}
}

func (r *MemoryRepository) Put(ctx context.Context, asset *models.Asset) error {
	if err := validateAsset(asset); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[assetKey{asset.OwnerID, asset.Filename}] = cloneAsset(asset)
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, ownerID, filename string) (*models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[assetKey{ownerID, filename}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneAsset(a), nil
}

func (r *MemoryRepository) List(ctx context.Context, ownerID string) ([]*models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Asset
	for k, a := range r.assets {
		if ownerID == "" || k.owner == ownerID {
			out = append(out, cloneAsset(a))
		}
	}
	sortAssets(out)
	return out, nil
}

func (r *MemoryRepository) AppendVariant(ctx context.Context, rec models.VariantRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	k := assetKey{rec.OwnerID, rec.Filename}
	a, ok := r.assets[k]
	if !ok {
		r.assets[k] = newAssetFromRecord(rec)
		return nil
	}
	at := rec.At
	a.Processed = models.AppendUnique(a.Processed, rec.Variant)
	a.LastTranscodedAt = &at
	return nil
}

func (r *MemoryRepository) SetFailure(ctx context.Context, ownerID, filename string, f models.Failure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[assetKey{ownerID, filename}]
	if !ok {
		return common.ErrorNotFound
	}
	a.LastFailure = &f
	return nil
}

// sortAssets orders records by owner, newest upload first.
func sortAssets(list []*models.Asset) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].OwnerID != list[j].OwnerID {
			return list[i].OwnerID < list[j].OwnerID
		}
		if !list[i].UploadedAt.Equal(list[j].UploadedAt) {
			return list[i].UploadedAt.After(list[j].UploadedAt)
		}
		return list[i].Filename < list[j].Filename
	})
}
