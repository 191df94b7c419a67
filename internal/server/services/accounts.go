// Package services contains server-side business logic. This file implements
// AccountService, which registers accounts, authenticates them into bearer
// tokens and applies deletions coming from the event consumer.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authsync/internal/common"
	"github.com/dmitrijs2005/authsync/internal/logging"
	"github.com/dmitrijs2005/authsync/internal/server/auth"
	"github.com/dmitrijs2005/authsync/internal/server/events"
	"github.com/dmitrijs2005/authsync/internal/server/models"
	"github.com/dmitrijs2005/authsync/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authsync/internal/server/repositories/repomanager"
)

// dummyPassword is hashed once at construction so that logins for unknown
// emails spend the same bcrypt time as logins with a wrong password.
const dummyPassword = "authsync-timing-equalizer"

// AccountService provides the credential operations:
// - Register: create an account and announce it downstream
// - Authenticate: check a password and mint an access token
// - Profile: resolve a bearer token to its current account
// - DeleteAccount: remove an account on behalf of the deletion consumer
type AccountService struct {
	repomanager    repomanager.RepositoryManager
	hasher         *auth.PasswordHasher
	issuer         *auth.TokenIssuer
	publisher      events.Publisher
	logger         logging.Logger
	publishTimeout time.Duration
	dummyHash      string
}

// NewAccountService wires the service. publisher may be disconnected; events
// are then skipped and logged.
func NewAccountService(m repomanager.RepositoryManager, hasher *auth.PasswordHasher, issuer *auth.TokenIssuer,
	publisher events.Publisher, logger logging.Logger, publishTimeout time.Duration) *AccountService {

	s := &AccountService{
		repomanager:    m,
		hasher:         hasher,
		issuer:         issuer,
		publisher:      publisher,
		logger:         logger.With("module", "account_service"),
		publishTimeout: publishTimeout,
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = 3 * time.Second
	}
	if h, err := hasher.Hash(dummyPassword); err == nil {
		s.dummyHash = h
	}
	return s
}

// Register stores a new account. A taken email, including one lost to a
// concurrent registration, yields common.ErrDuplicateAccount. The
// AccountCreated event is best effort: failures are logged and do not undo
// the registration.
func (s *AccountService) Register(ctx context.Context, email, password, displayName string) (*models.Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email is required", common.ErrValidation)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", common.ErrValidation)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	var created *models.Account
	err = s.repomanager.WithinTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		exists, err := repo.Exists(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return common.ErrDuplicateAccount
		}
		created, err = repo.Insert(ctx, &models.Account{
			Email:        email,
			DisplayName:  displayName,
			PasswordHash: hash,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateAccount) {
			return nil, common.ErrDuplicateAccount
		}
		s.logger.Error(ctx, "Account registration failed", "error", err)
		return nil, fmt.Errorf("%w: register account: %w", common.ErrInternal, err)
	}

	s.logger.Info(ctx, "Account registered", "account_id", created.ID)
	s.announce(ctx, created)
	return created, nil
}

func (s *AccountService) announce(ctx context.Context, account *models.Account) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	event := events.AccountCreated{
		AccountID:   account.ID,
		DisplayName: account.DisplayName,
		Email:       account.Email,
	}
	if err := s.publisher.PublishCreated(ctx, event); err != nil {
		s.logger.Warn(ctx, "AccountCreated not published", "account_id", account.ID, "error", err)
	}
}

// Authenticate returns a signed token for valid credentials. Unknown emails
// and wrong passwords both yield common.ErrInvalidCredentials.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (string, error) {
	account, err := s.repomanager.Accounts().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return "", common.ErrInvalidCredentials
		}
		s.logger.Error(ctx, "Account lookup failed", "error", err)
		return "", common.ErrInternal
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		return "", common.ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(account.ID, account.Email)
	if err != nil {
		s.logger.Error(ctx, "Token signing failed", "error", err)
		return "", common.ErrInternal
	}
	return token, nil
}

// Profile verifies token and loads the account it names. Tokens for
// accounts deleted since issuance are rejected with common.ErrInvalidToken.
func (s *AccountService) Profile(ctx context.Context, token string) (*models.Account, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", common.ErrInvalidToken)
	}

	account, err := s.repomanager.Accounts().FindByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: account no longer exists", common.ErrInvalidToken)
		}
		s.logger.Error(ctx, "Account lookup failed", "error", err)
		return nil, common.ErrInternal
	}
	if account.ID != id {
		return nil, fmt.Errorf("%w: subject %d does not match account", common.ErrInvalidToken, id)
	}
	return account, nil
}

// DeleteAccount removes the account with email and reports whether one
// existed. Store failures are wrapped in common.ErrTransient so the consumer
// requeues the event.
func (s *AccountService) DeleteAccount(ctx context.Context, email string) (bool, error) {
	removed, err := s.repomanager.Accounts().DeleteByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("%w: delete account: %w", common.ErrTransient, err)
	}
	if removed {
		s.logger.Info(ctx, "Account deleted")
	} else {
		s.logger.Debug(ctx, "Account deletion found nothing to remove")
	}
	return removed, nil
}
