package events

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/authsync/internal/logging"
)

// AccountRemover deletes accounts by email, idempotently.
type AccountRemover interface {
	DeleteAccount(ctx context.Context, email string) (bool, error)
}

// DeletionHandler applies AccountDeleted messages. A repeated event for an
// already removed account succeeds without effect.
func DeletionHandler(remover AccountRemover, logger logging.Logger) Handler {
	return func(ctx context.Context, body []byte) error {
		event, err := DecodeAccountDeleted(body)
		if err != nil {
			return err
		}

		removed, err := remover.DeleteAccount(ctx, event.Email)
		if err != nil {
			return fmt.Errorf("delete account: %w", err)
		}

		logger.Info(ctx, "Account deletion applied", "removed", removed)
		return nil
	}
}
