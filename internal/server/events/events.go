// Package events defines the account lifecycle messages exchanged with
// downstream services and the publish/consume machinery around them.
//
// Delivery is at-least-once: publishers are best effort and consumers must be
// idempotent.
package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authsync/internal/common"
)

// Default queue names.
const (
	AccountCreatedQueue = "AccountCreatedQueue"
	AccountDeletedQueue = "AccountDeletedQueue"
)

// AccountCreated announces a new registration.
type AccountCreated struct {
	AccountID   int64  `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// AccountDeleted asks for the account with Email to be removed.
type AccountDeleted struct {
	Email string `json:"email"`
}

// Encode returns the JSON wire payload of an event.
func Encode(event any) ([]byte, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

// DecodeAccountDeleted parses a deletion payload. Bodies that are not a JSON
// object or lack a non-blank email are reported as common.ErrMalformedMessage.
func DecodeAccountDeleted(body []byte) (AccountDeleted, error) {
	var event AccountDeleted
	if err := json.Unmarshal(body, &event); err != nil {
		return AccountDeleted{}, fmt.Errorf("%w: %v", common.ErrMalformedMessage, err)
	}
	if strings.TrimSpace(event.Email) == "" {
		return AccountDeleted{}, fmt.Errorf("%w: email is required", common.ErrMalformedMessage)
	}
	return event, nil
}
