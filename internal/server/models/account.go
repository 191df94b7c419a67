package models

import "time"

// Account is a registered identity. Email is unique and case-sensitive as
// stored; PasswordHash is the self-describing bcrypt string, never the
// cleartext.
type Account struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}
