package repomanager

import (
	"context"

	"github.com/dmitrijs2005/authsync/internal/server/repositories/accounts"
)

// RepositoryManager vends account repositories bound either to the shared
// connection or to a transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Accounts() accounts.Repository
	// WithinTx runs fn against a repository whose writes commit together,
	// or not at all when fn returns an error.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error
	Close() error
}
