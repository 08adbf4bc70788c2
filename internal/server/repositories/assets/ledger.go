package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/filex"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/gofrs/flock"
)

const ledgerLockRetry = 10 * time.Millisecond

// LedgerRepository keeps the whole catalog in a single JSON file. Writers
// hold an exclusive file lock for the full read-modify-write, so several
// processes sharing the file never lose an update.
type LedgerRepository struct {
	path string
	mu   sync.RWMutex
	lock *flock.Flock
}

func NewLedgerRepository(path string) *LedgerRepository {
	return &LedgerRepository{path: path, lock: flock.New(path + ".lock")}
}

type ledgerFile struct {
	Assets []*models.Asset `json:"assets"`
}

func (r *LedgerRepository) Put(ctx context.Context, a *models.Asset) error {
	if err := validateAsset(a); err != nil {
		return err
	}
	return r.update(ctx, func(list []*models.Asset) ([]*models.Asset, error) {
		for i, cur := range list {
			if cur.OwnerID == a.OwnerID && cur.Filename == a.Filename {
				list[i] = cloneAsset(a)
				return list, nil
			}
		}
		return append(list, cloneAsset(a)), nil
	})
}

func (r *LedgerRepository) Get(ctx context.Context, ownerID, filename string) (*models.Asset, error) {
	list, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range list {
		if a.OwnerID == ownerID && a.Filename == filename {
			return a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *LedgerRepository) List(ctx context.Context, ownerID string) ([]*models.Asset, error) {
	list, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.Asset
	for _, a := range list {
		if ownerID == "" || a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sortAssets(out)
	return out, nil
}

func (r *LedgerRepository) AppendVariant(ctx context.Context, rec models.VariantRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	return r.update(ctx, func(list []*models.Asset) ([]*models.Asset, error) {
		for _, a := range list {
			if a.OwnerID == rec.OwnerID && a.Filename == rec.Filename {
				at := rec.At
				a.Processed = models.AppendUnique(a.Processed, rec.Variant)
				a.LastTranscodedAt = &at
				return list, nil
			}
		}
		return append(list, newAssetFromRecord(rec)), nil
	})
}

func (r *LedgerRepository) SetFailure(ctx context.Context, ownerID, filename string, f models.Failure) error {
	return r.update(ctx, func(list []*models.Asset) ([]*models.Asset, error) {
		for _, a := range list {
			if a.OwnerID == ownerID && a.Filename == filename {
				failure := f
				a.LastFailure = &failure
				return list, nil
			}
		}
		return nil, common.ErrorNotFound
	})
}

func (r *LedgerRepository) read(ctx context.Context) ([]*models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ok, err := r.lock.TryRLockContext(ctx, ledgerLockRetry)
	if err != nil || !ok {
		return nil, metadataError("lock ledger", lockErr(err))
	}
	defer r.lock.Unlock()

	return r.load()
}

func (r *LedgerRepository) update(ctx context.Context, fn func([]*models.Asset) ([]*models.Asset, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok, err := r.lock.TryLockContext(ctx, ledgerLockRetry)
	if err != nil || !ok {
		return metadataError("lock ledger", lockErr(err))
	}
	defer r.lock.Unlock()

	list, err := r.load()
	if err != nil {
		return err
	}
	list, err = fn(list)
	if err != nil {
		return err
	}
	sortAssets(list)

	data, err := json.MarshalIndent(ledgerFile{Assets: list}, "", "  ")
	if err != nil {
		return metadataError("encode ledger", err)
	}
	if err := filex.WriteFileAtomic(r.path, data, 0o600); err != nil {
		return metadataError("write ledger", err)
	}
	return nil
}

// load treats a missing file as an empty catalog.
func (r *LedgerRepository) load() ([]*models.Asset, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, metadataError("read ledger", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, metadataError("decode ledger", err)
	}
	for _, a := range f.Assets {
		if a.Processed == nil {
			a.Processed = []string{}
		}
	}
	return f.Assets, nil
}

func lockErr(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("lock not acquired")
}
