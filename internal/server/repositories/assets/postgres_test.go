package assets

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPgRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var assetColumns = []string{"owner_id", "filename", "storage_key", "checksum", "size", "processed", "uploaded_at", "last_transcoded_at", "last_failure"}

func TestPostgresPut_Upsert(t *testing.T) {
	repo, mock, db := newPgRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO assets .* ON CONFLICT \(owner_id, filename\)\s+DO UPDATE SET`)
	mock.ExpectExec(q.String()).
		WithArgs("alice", "clip.mp4", "uploads/alice/1_clip.mp4", "sum", int64(10),
			`["clip_medium.mp4"]`, sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Put(context.Background(), &models.Asset{
		OwnerID:    "alice",
		Filename:   "clip.mp4",
		StorageKey: "uploads/alice/1_clip.mp4",
		Checksum:   "sum",
		Size:       10,
		Processed:  []string{"clip_medium.mp4"},
		UploadedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPut_DBError(t *testing.T) {
	repo, mock, db := newPgRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO assets`).WillReturnError(errors.New("conn reset"))

	err := repo.Put(context.Background(), &models.Asset{OwnerID: "alice", Filename: "clip.mp4"})
	assert.ErrorIs(t, err, common.ErrMetadataFailure)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	repo, mock, db := newPgRepoWithMock(t)
	defer db.Close()

	uploaded := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	transcoded := uploaded.Add(time.Minute)
	rows := sqlmock.NewRows(assetColumns).
		AddRow("alice", "clip.mp4", "uploads/alice/1_clip.mp4", "sum", int64(10),
			[]byte(`["clip_medium.mp4","clip_slow.webm"]`), uploaded, transcoded,
			[]byte(`{"variant":"clip_fast.avi","reason":"boom","at":"2025-01-02T03:04:05Z"}`))

	mock.ExpectQuery(`SELECT owner_id, filename, .* FROM assets WHERE owner_id = \$1 AND filename = \$2`).
		WithArgs("alice", "clip.mp4").
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "alice", "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, []string{"clip_medium.mp4", "clip_slow.webm"}, got.Processed)
	require.NotNil(t, got.LastTranscodedAt)
	assert.True(t, got.LastTranscodedAt.Equal(transcoded))
	require.NotNil(t, got.LastFailure)
	assert.Equal(t, "boom", got.LastFailure.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_NotFound(t *testing.T) {
	repo, mock, db := newPgRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM assets WHERE owner_id = \$1`).
		WithArgs("alice", "nope.mp4").
		WillReturnRows(sqlmock.NewRows(assetColumns))

	_, err := repo.Get(context.Background(), "alice", "nope.mp4")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgresList_AllOwners(t *testing.T) {
	repo, mock, db := newPgRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(assetColumns).
		AddRow("alice", "a.mp4", "k1", "", int64(1), []byte(`[]`), now, nil, nil).
		AddRow("bob", "b.mp4", "k2", "", int64(2), []byte(`["b_fast.mp4"]`), now, nil, nil)

	mock.ExpectQuery(`WHERE \(\$1 = '' OR owner_id = \$1\) ORDER BY owner_id, uploaded_at DESC, filename`).
		WithArgs("").
		WillReturnRows(rows)

	got, err := repo.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[1].OwnerID)
	assert.Equal(t, []string{"b_fast.mp4"}, got[1].Processed)
	assert.Nil(t, got[0].LastTranscodedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList_QueryError(t *testing.T) {
	repo, mock, db := newPgRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM assets`).WithArgs("alice").WillReturnError(errors.New("db down"))

	_, err := repo.List(context.Background(), "alice")
	assert.ErrorIs(t, err, common.ErrMetadataFailure)
}

func TestPostgresAppendVariant_SingleStatement(t *testing.T) {
	repo, mock, db := newPgRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	q := regexp.MustCompile(`INSERT INTO assets .* jsonb_build_array\(\$4::text\).* ON CONFLICT .* WHEN assets\.processed @> jsonb_build_array\(\$4::text\)`)
	mock.ExpectExec(q.String()).
		WithArgs("alice", "clip.mp4", "uploads/alice/1_clip.mp4", "clip_medium.mp4", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendVariant(context.Background(), models.VariantRecord{
		OwnerID:    "alice",
		Filename:   "clip.mp4",
		StorageKey: "uploads/alice/1_clip.mp4",
		Variant:    "clip_medium.mp4",
		At:         at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetFailure(t *testing.T) {
	repo, mock, db := newPgRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE assets SET last_failure = \$3::jsonb WHERE owner_id = \$1 AND filename = \$2`).
		WithArgs("alice", "clip.mp4", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE assets SET last_failure`).
		WithArgs("alice", "gone.mp4", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	f := models.Failure{Variant: "clip_medium.mp4", Reason: "boom", At: time.Now()}
	require.NoError(t, repo.SetFailure(context.Background(), "alice", "clip.mp4", f))
	assert.ErrorIs(t, repo.SetFailure(context.Background(), "alice", "gone.mp4", f), common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
