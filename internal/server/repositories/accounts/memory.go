package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/authsync/internal/common"
	"github.com/dmitrijs2005/authsync/internal/server/models"
)

// InMemoryRepository keeps accounts in a map. The uniqueness check and the
// insert happen under one lock, so it gives the same guarantee as the
// database constraint.
type InMemoryRepository struct {
	mu       sync.RWMutex
	byEmail  map[string]models.Account
	sequence int64
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byEmail: make(map[string]models.Account)}
}

func (r *InMemoryRepository) Exists(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[email]
	return ok, nil
}

func (r *InMemoryRepository) Insert(ctx context.Context, account *models.Account) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[account.Email]; ok {
		return nil, common.ErrDuplicateAccount
	}

	r.sequence++
	account.ID = r.sequence
	account.CreatedAt = time.Now().UTC()
	r.byEmail[account.Email] = *account

	return account, nil
}

func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &account, nil
}

func (r *InMemoryRepository) DeleteByEmail(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[email]; !ok {
		return false, nil
	}
	delete(r.byEmail, email)
	return true, nil
}
