package assets

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/server/migrations"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "meta.db")+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.SQLite)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "sqlite"))
	return db
}

func backends() map[string]func(t *testing.T) Repository {
	return map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository { return NewMemoryRepository() },
		"sqlite": func(t *testing.T) Repository { return NewSQLiteRepository(openSQLite(t)) },
		"ledger": func(t *testing.T) Repository {
			return NewLedgerRepository(filepath.Join(t.TempDir(), "catalog.json"))
		},
	}
}

func sampleAsset(owner, name string, uploaded time.Time) *models.Asset {
	return &models.Asset{
		OwnerID:    owner,
		Filename:   name,
		StorageKey: common.ObjectKey(common.UploadsNamespace, owner, common.StoredName(uploaded, name)),
		Checksum:   "abc123",
		Size:       1024,
		Processed:  []string{},
		UploadedAt: uploaded,
	}
}

func TestRepository_PutGet(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			want := sampleAsset("alice", "clip.mp4", t0)
			require.NoError(t, repo.Put(ctx, want))

			got, err := repo.Get(ctx, "alice", "clip.mp4")
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("asset mismatch (-want +got):\n%s", diff)
			}

			_, err = repo.Get(ctx, "bob", "clip.mp4")
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}

func TestRepository_PutReplacesRecord(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			first := sampleAsset("alice", "clip.mp4", t0)
			first.Processed = []string{"clip_medium.mp4"}
			require.NoError(t, repo.Put(ctx, first))

			second := sampleAsset("alice", "clip.mp4", t0.Add(time.Hour))
			require.NoError(t, repo.Put(ctx, second))

			got, err := repo.Get(ctx, "alice", "clip.mp4")
			require.NoError(t, err)
			assert.Empty(t, got.Processed)
			assert.True(t, got.UploadedAt.Equal(second.UploadedAt))
			assert.Equal(t, second.StorageKey, got.StorageKey)
		})
	}
}

func TestRepository_PutValidation(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			err := repo.Put(context.Background(), &models.Asset{Filename: "x.mp4"})
			assert.ErrorIs(t, err, common.ErrValidation)
			err = repo.AppendVariant(context.Background(), models.VariantRecord{OwnerID: "a", Filename: "x.mp4"})
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestRepository_ListScopes(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			require.NoError(t, repo.Put(ctx, sampleAsset("bob", "b.mp4", t0)))
			require.NoError(t, repo.Put(ctx, sampleAsset("alice", "old.mp4", t0)))
			require.NoError(t, repo.Put(ctx, sampleAsset("alice", "new.mp4", t0.Add(time.Minute))))

			mine, err := repo.List(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, mine, 2)
			assert.Equal(t, "new.mp4", mine[0].Filename)
			assert.Equal(t, "old.mp4", mine[1].Filename)

			all, err := repo.List(ctx, "")
			require.NoError(t, err)
			var owners []string
			for _, a := range all {
				owners = append(owners, a.OwnerID)
			}
			assert.Equal(t, []string{"alice", "alice", "bob"}, owners)

			none, err := repo.List(ctx, "carol")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestRepository_AppendVariant(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(t, repo.Put(ctx, sampleAsset("alice", "clip.mp4", t0)))

			rec := models.VariantRecord{OwnerID: "alice", Filename: "clip.mp4", Variant: "clip_medium.mp4", At: t0.Add(time.Minute)}
			require.NoError(t, repo.AppendVariant(ctx, rec))
			rec.At = t0.Add(2 * time.Minute)
			require.NoError(t, repo.AppendVariant(ctx, rec))
			require.NoError(t, repo.AppendVariant(ctx, models.VariantRecord{
				OwnerID: "alice", Filename: "clip.mp4", Variant: "clip_slow.webm", At: t0.Add(3 * time.Minute),
			}))

			got, err := repo.Get(ctx, "alice", "clip.mp4")
			require.NoError(t, err)
			assert.Equal(t, []string{"clip_medium.mp4", "clip_slow.webm"}, got.Processed)
			require.NotNil(t, got.LastTranscodedAt)
			assert.True(t, got.LastTranscodedAt.Equal(t0.Add(3*time.Minute)))
			assert.Equal(t, int64(1024), got.Size)
		})
	}
}

func TestRepository_AppendVariantCreatesRecord(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			rec := models.VariantRecord{
				OwnerID:    "alice",
				Filename:   "clip.mp4",
				StorageKey: "uploads/alice/1700000000000_clip.mp4",
				Variant:    "clip_medium.mp4",
				At:         t0,
			}
			require.NoError(t, repo.AppendVariant(ctx, rec))

			got, err := repo.Get(ctx, "alice", "clip.mp4")
			require.NoError(t, err)
			assert.Equal(t, rec.StorageKey, got.StorageKey)
			assert.Equal(t, []string{"clip_medium.mp4"}, got.Processed)
		})
	}
}

func TestRepository_AppendVariantConcurrent(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(t, repo.Put(ctx, sampleAsset("alice", "clip.mp4", t0)))

			variants := []string{"clip_fast.mp4", "clip_medium.mp4", "clip_slow.mp4", "clip_medium.webm", "clip_medium.avi"}
			var wg sync.WaitGroup
			errs := make(chan error, len(variants))
			for _, v := range variants {
				wg.Add(1)
				go func(v string) {
					defer wg.Done()
					errs <- repo.AppendVariant(ctx, models.VariantRecord{OwnerID: "alice", Filename: "clip.mp4", Variant: v, At: t0})
				}(v)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			got, err := repo.Get(ctx, "alice", "clip.mp4")
			require.NoError(t, err)
			assert.ElementsMatch(t, variants, got.Processed)
		})
	}
}

func TestRepository_SetFailure(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(t, repo.Put(ctx, sampleAsset("alice", "clip.mp4", t0)))

			f := models.Failure{Variant: "clip_medium.mp4", Reason: "exit status 1", At: t0}
			require.NoError(t, repo.SetFailure(ctx, "alice", "clip.mp4", f))

			got, err := repo.Get(ctx, "alice", "clip.mp4")
			require.NoError(t, err)
			require.NotNil(t, got.LastFailure)
			assert.Equal(t, "exit status 1", got.LastFailure.Reason)
			assert.True(t, got.LastFailure.At.Equal(t0))

			err = repo.SetFailure(ctx, "alice", "missing.mp4", f)
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}
