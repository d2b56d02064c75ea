package ports

import (
	"context"
	"errors"

	"github.com/layer-3/authgate/core"
)

// ErrTransport marks failures to reach a remote endpoint at all, as opposed to
// the endpoint answering with an error.
var ErrTransport = errors.New("transport failure")

// Wallet is the connected wallet as seen by the session workflow.
type Wallet interface {
	Connection() core.Connection
	// Events delivers a value every time the connection changes. The channel is
	// closed when the wallet shuts down.
	Events() <-chan core.Connection
	Disconnect(ctx context.Context) error
	// SignMessage returns a 0x-prefixed personal_sign signature of message.
	SignMessage(ctx context.Context, message string) (string, error)
}

// AuthAPI is the remote authentication service.
type AuthAPI interface {
	Challenge(ctx context.Context, address string) (string, error)
	Authenticate(ctx context.Context, signature, address string) (string, error)
	CurrentUser(ctx context.Context, token string) (core.Identity, error)
}

// TokenStore persists the session token on the client side.
type TokenStore interface {
	// Get returns the stored token and whether one exists.
	Get() (string, bool)
	Set(token string) error
	Remove() error
}

// Refresher is signalled every time the workflow settles.
type Refresher interface {
	Refresh(ctx context.Context, snapshot core.Snapshot)
}
