// Package credentials persists the single current bearer token of each user.
package credentials

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("credentials: token not found")

// Store keeps at most one token per user. Put overwrites, which is what invalidates the
// previously issued token.
type Store interface {
	Get(ctx context.Context, userID string) (string, error)
	Put(ctx context.Context, userID, token string, expiresAt time.Time) error
	Delete(ctx context.Context, userID string) error
}

// TxStore runs then in the transaction that changes the row, after the change and before
// commit. An error from then rolls the change back.
type TxStore interface {
	Store
	PutThen(ctx context.Context, userID, token string, expiresAt time.Time, then func() error) error
	DeleteThen(ctx context.Context, userID string, then func() error) error
}

// Evicter drops cached copies of tokens whose rows are deleted outside the Store. Directory
// transactions call it before commit so a failed eviction leaves the rows in place.
type Evicter interface {
	Evict(ctx context.Context, userIDs ...string) error
}

// Sealer encrypts token text at rest. *crypto.Sealer satisfies it.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}
