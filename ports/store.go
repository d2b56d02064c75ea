package ports

import (
	"context"
	"time"
)

// Store keeps outstanding challenges and revoked sessions
type Store interface {
	// PutChallenge records the outstanding challenge for an address, replacing any previous one.
	PutChallenge(ctx context.Context, address string, challengeToken string, expiry time.Duration) error
	// TakeChallenge returns and removes the outstanding challenge for an address.
	// It returns core.ErrChallengeMissing when there is none.
	TakeChallenge(ctx context.Context, address string) (string, error)

	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}
