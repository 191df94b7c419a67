package repomanager

import (
	"context"

	"github.com/dmitrijs2005/authsync/internal/server/repositories/accounts"
)

// InMemoryRepositoryManager serves a single in-memory account repository.
// WithinTx offers no rollback; every write it performs is a single
// repository call.
type InMemoryRepositoryManager struct {
	accounts *accounts.InMemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{accounts: accounts.NewInMemoryRepository()}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Accounts() accounts.Repository {
	return m.accounts
}

func (m *InMemoryRepositoryManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error {
	return fn(ctx, m.accounts)
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
