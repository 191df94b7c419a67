// Package accounts stores Account records keyed by email. Implementations
// must enforce email uniqueness themselves so concurrent registrations of the
// same email produce exactly one row.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/authsync/internal/server/models"
)

type Repository interface {
	// Exists reports whether an account with this email is stored.
	Exists(ctx context.Context, email string) (bool, error)
	// Insert stores a new account and fills in ID and CreatedAt.
	// A taken email yields common.ErrDuplicateAccount.
	Insert(ctx context.Context, account *models.Account) (*models.Account, error)
	// FindByEmail yields common.ErrNotFound when absent.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	// DeleteByEmail reports whether a row was removed. Missing emails are not an error.
	DeleteByEmail(ctx context.Context, email string) (bool, error)
}
