package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/transcoder/internal/filex"
	"github.com/dmitrijs2005/transcoder/internal/logging"
	"github.com/dmitrijs2005/transcoder/internal/server/config"
	"github.com/dmitrijs2005/transcoder/internal/server/repositories/assets"
	"github.com/dmitrijs2005/transcoder/internal/server/storage"
)

// sqlOpen is a seam for testing.
var sqlOpen = sql.Open

// Open connects to the metadata backend selected by cfg.MetadataBackend.
// Migrations are not run; call RunMigrations.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (RepositoryManager, error) {
	switch cfg.MetadataBackend {
	case config.BackendMemory:
		logger.Warn(ctx, "metadata is kept in memory and lost on restart")
		return NewInMemoryRepositoryManager(), nil

	case config.BackendLedger:
		if _, err := filex.EnsureDir(filepath.Dir(cfg.LedgerPath)); err != nil {
			return nil, err
		}
		return NewLedgerRepositoryManager(cfg.LedgerPath), nil

	case config.BackendPostgres:
		db, err := sqlOpen("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return NewPostgresRepositoryManager(db), nil

	case config.BackendSQLite:
		if _, err := filex.EnsureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
			return nil, err
		}
		dsn := "file:" + cfg.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		db, err := sqlOpen("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// one writer at a time; WAL keeps readers unblocked
		db.SetMaxOpenConns(1)
		return NewSQLiteRepositoryManager(db), nil

	case config.BackendDynamoDB:
		awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSConfig{
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewDynamoRepositoryManager(assets.NewDynamoRepository(awsCfg, cfg.DynamoTable, cfg.DynamoEndpoint)), nil
	}
	return nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
}
