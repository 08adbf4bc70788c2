package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/transcoder/internal/dbx"
	"github.com/dmitrijs2005/transcoder/internal/server/migrations"
	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/dmitrijs2005/transcoder/internal/server/repositories/assets"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLRepositoryManager vends repositories bound to one *sql.DB and runs the
// embedded goose migrations of its dialect.
type SQLRepositoryManager struct {
	db      *sql.DB
	dialect string
	fsys    fs.FS
	dir     string
	newRepo func(dbx.DBTX) assets.Repository
}

// NewPostgresRepositoryManager wraps a pgx-backed *sql.DB.
func NewPostgresRepositoryManager(db *sql.DB) *SQLRepositoryManager {
	return &SQLRepositoryManager{
		db:      db,
		dialect: "pgx",
		fsys:    migrations.Postgres,
		dir:     "postgres",
		newRepo: func(db dbx.DBTX) assets.Repository { return assets.NewPostgresRepository(db) },
	}
}

// NewSQLiteRepositoryManager wraps a modernc SQLite *sql.DB.
func NewSQLiteRepositoryManager(db *sql.DB) *SQLRepositoryManager {
	return &SQLRepositoryManager{
		db:      db,
		dialect: "sqlite3",
		fsys:    migrations.SQLite,
		dir:     "sqlite",
		newRepo: func(db dbx.DBTX) assets.Repository { return assets.NewSQLiteRepository(db) },
	}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the database.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(m.fsys)
	if err := goose.SetDialect(m.dialect); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, m.db, m.dir); err != nil {
		return fmt.Errorf("migrate %s: %w", m.dialect, err)
	}
	return nil
}

// Assets returns a repository bound to the database handle.
func (m *SQLRepositoryManager) Assets() assets.Repository {
	return m.newRepo(m.db)
}

// Import writes all records in one transaction; nothing is stored when any
// record fails.
func (m *SQLRepositoryManager) Import(ctx context.Context, list []*models.Asset) (int, error) {
	n := 0
	err := dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = importEach(ctx, m.newRepo(tx), list)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (m *SQLRepositoryManager) Close() error {
	return m.db.Close()
}
