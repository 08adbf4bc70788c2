// Package repomanager opens the configured metadata backend and exposes it
// behind one RepositoryManager, including schema migrations for the SQL
// engines.
package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/transcoder/internal/server/models"
	"github.com/dmitrijs2005/transcoder/internal/server/repositories/assets"
)

type RepositoryManager interface {
	// RunMigrations brings the backend schema up to date. Backends without a
	// schema return nil.
	RunMigrations(ctx context.Context) error
	Assets() assets.Repository
	// Import stores records in bulk and returns how many were written.
	Import(ctx context.Context, list []*models.Asset) (int, error)
	Close() error
}

// importEach is the Import of backends without transactions.
func importEach(ctx context.Context, repo assets.Repository, list []*models.Asset) (int, error) {
	n := 0
	for _, a := range list {
		if err := repo.Put(ctx, a); err != nil {
			return n, fmt.Errorf("import %s/%s: %w", a.OwnerID, a.Filename, err)
		}
		n++
	}
	return n, nil
}

// InMemoryRepositoryManager serves a process-local catalog.
type InMemoryRepositoryManager struct {
	repo *assets.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{repo: assets.NewMemoryRepository()}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }
func (m *InMemoryRepositoryManager) Assets() assets.Repository               { return m.repo }
func (m *InMemoryRepositoryManager) Close() error                            { return nil }

func (m *InMemoryRepositoryManager) Import(ctx context.Context, list []*models.Asset) (int, error) {
	return importEach(ctx, m.repo, list)
}

// LedgerRepositoryManager serves a catalog kept in a JSON file.
type LedgerRepositoryManager struct {
	repo *assets.LedgerRepository
}

func NewLedgerRepositoryManager(path string) *LedgerRepositoryManager {
	return &LedgerRepositoryManager{repo: assets.NewLedgerRepository(path)}
}

func (m *LedgerRepositoryManager) RunMigrations(ctx context.Context) error { return nil }
func (m *LedgerRepositoryManager) Assets() assets.Repository               { return m.repo }
func (m *LedgerRepositoryManager) Close() error                            { return nil }

func (m *LedgerRepositoryManager) Import(ctx context.Context, list []*models.Asset) (int, error) {
	return importEach(ctx, m.repo, list)
}

// Ledger opens a read/write view of the JSON ledger at path regardless of
// the configured backend. It is the source of ledger imports.
func Ledger(path string) assets.Repository {
	return assets.NewLedgerRepository(path)
}

// DynamoRepositoryManager serves a catalog kept in a DynamoDB table. The
// table is provisioned outside the service.
type DynamoRepositoryManager struct {
	repo *assets.DynamoRepository
}

func NewDynamoRepositoryManager(repo *assets.DynamoRepository) *DynamoRepositoryManager {
	return &DynamoRepositoryManager{repo: repo}
}

func (m *DynamoRepositoryManager) RunMigrations(ctx context.Context) error { return nil }
func (m *DynamoRepositoryManager) Assets() assets.Repository               { return m.repo }
func (m *DynamoRepositoryManager) Close() error                            { return nil }

func (m *DynamoRepositoryManager) Import(ctx context.Context, list []*models.Asset) (int, error) {
	return importEach(ctx, m.repo, list)
}
