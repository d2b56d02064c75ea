// Package client drives the wallet-signature session handshake on the client
// side and keeps the observable session state consistent with the wallet.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/layer-3/authgate/core"
	"github.com/layer-3/authgate/ports"
)

type trigger int

const (
	triggerMount trigger = iota
	triggerConnection
	triggerLogout
)

// Controller owns the session state for one application scope.
type Controller struct {
	wallet    ports.Wallet
	api       ports.AuthAPI
	tokens    ports.TokenStore
	refresher ports.Refresher
	logger    *slog.Logger

	mu       sync.Mutex
	snapshot core.Snapshot
	running  bool
	pending  *trigger
	subs     map[int]chan core.Snapshot
	nextSub  int
}

// Option configures a Controller
type Option func(*Controller)

// WithRefresher sets the component signalled after every settle.
func WithRefresher(r ports.Refresher) Option {
	return func(c *Controller) { c.refresher = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller in the Unauthenticated state.
func NewController(wallet ports.Wallet, api ports.AuthAPI, tokens ports.TokenStore, opts ...Option) *Controller {
	c := &Controller{
		wallet:   wallet,
		api:      api,
		tokens:   tokens,
		logger:   slog.Default(),
		snapshot: core.Snapshot{State: core.StateUnauthenticated},
		subs:     make(map[int]chan core.Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current session state.
func (c *Controller) State() core.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Subscribe returns a channel receiving every state change. Slow readers only
// see the latest state. The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan core.Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan core.Snapshot, 1)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close drops all subscribers. It is called when the owning scope goes away.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// Run performs the mount check and then re-validates on every wallet
// connection change until ctx is done or the wallet event stream closes.
func (c *Controller) Run(ctx context.Context) error {
	c.Mount(ctx)

	events := c.wallet.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			c.Sync(ctx)
		}
	}
}

// Mount validates a cached token against the connected wallet, or logs out
// when there is nothing to validate.
func (c *Controller) Mount(ctx context.Context) { c.dispatch(ctx, triggerMount) }

// Sync reacts to the wallet connection state: an active wallet is validated or
// put through the handshake, a disconnected one is logged out.
func (c *Controller) Sync(ctx context.Context) { c.dispatch(ctx, triggerConnection) }

// Logout disconnects the wallet and drops the session token. Calling it when
// already logged out does nothing.
func (c *Controller) Logout(ctx context.Context) { c.dispatch(ctx, triggerLogout) }

// dispatch runs t unless a sequence is already in flight, in which case t is
// queued and runs once the current sequence settles. Only one trigger is kept;
// a queued logout is never replaced.
func (c *Controller) dispatch(ctx context.Context, t trigger) {
	c.mu.Lock()
	if c.running {
		if c.pending == nil || *c.pending != triggerLogout {
			c.pending = &t
		}
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	for {
		c.reconcile(ctx, t)

		c.mu.Lock()
		if c.pending == nil {
			c.running = false
			c.mu.Unlock()
			return
		}
		t = *c.pending
		c.pending = nil
		c.mu.Unlock()
	}
}

func (c *Controller) reconcile(ctx context.Context, t trigger) {
	conn := c.wallet.Connection()
	token, hasToken := c.tokens.Get()

	switch t {
	case triggerLogout:
		c.logout(ctx, nil, true)
		return
	case triggerMount:
		switch {
		case hasToken && conn.Address != "":
		case !hasToken && conn.Active():
			// Already connected without a token: handshake now instead of
			// racing a separate connection trigger.
		default:
			c.logout(ctx, nil, false)
			return
		}
	case triggerConnection:
		if conn.Status == core.StatusConnecting {
			return
		}
		if !conn.Active() {
			c.logout(ctx, nil, false)
			return
		}
	}

	c.update(core.Snapshot{State: core.StateAuthenticating})

	var authErr *core.AuthError
	if hasToken {
		authErr = c.validate(ctx, token, conn.Address)
	} else {
		authErr = c.handshake(ctx, conn.Address)
	}
	if authErr != nil {
		c.logger.Warn("authentication failed", "address", conn.Address, "kind", authErr.Kind.String(), "error", authErr.Err)
		c.logout(ctx, authErr, true)
		return
	}

	c.logger.Info("session authenticated", "address", conn.Address)
	c.settle(ctx, core.Snapshot{State: core.StateAuthenticated})
}

// validate checks that the cached token belongs to the connected wallet.
func (c *Controller) validate(ctx context.Context, token, address string) *core.AuthError {
	identity, err := c.api.CurrentUser(ctx, token)
	if err != nil {
		return classify(core.KindSessionRejected, err)
	}
	if !core.SameAddress(identity.Username, address) {
		return &core.AuthError{
			Kind: core.KindIdentityMismatch,
			Err:  fmt.Errorf("session belongs to %q, wallet is %q", identity.Username, address),
		}
	}
	return nil
}

// handshake requests a challenge, has the wallet sign it and exchanges the
// signature for a session token.
func (c *Controller) handshake(ctx context.Context, address string) *core.AuthError {
	challenge, err := c.api.Challenge(ctx, address)
	if err != nil {
		return classify(core.KindChallengeFailed, err)
	}

	signature, err := c.wallet.SignMessage(ctx, core.ChallengeMessage(challenge))
	if err != nil {
		return &core.AuthError{Kind: core.KindSignatureRejected, Err: err}
	}

	token, err := c.api.Authenticate(ctx, signature, address)
	if err != nil {
		return classify(core.KindAuthenticateFailed, err)
	}

	if err := c.tokens.Set(token); err != nil {
		return &core.AuthError{Kind: core.KindAuthenticateFailed, Err: fmt.Errorf("failed to store session token: %w", err)}
	}
	return nil
}

// logout clears the token and, when disconnect is set, the wallet session.
// Without a cause, an already logged out session with nothing left to tear
// down only settles again.
func (c *Controller) logout(ctx context.Context, cause *core.AuthError, disconnect bool) {
	_, hasToken := c.tokens.Get()
	walletUp := disconnect && c.wallet.Connection().Status != core.StatusDisconnected
	if cause == nil && !hasToken && !walletUp && c.State().State == core.StateLoggedOut {
		// settling again drops a stale error
		c.settle(ctx, core.Snapshot{State: core.StateLoggedOut})
		return
	}

	if walletUp {
		if err := c.wallet.Disconnect(ctx); err != nil {
			c.logger.Warn("failed to disconnect wallet", "error", err)
		}
	}
	if hasToken {
		if err := c.tokens.Remove(); err != nil {
			c.logger.Error("failed to remove session token", "error", err)
		}
	}

	c.logger.Info("session logged out")
	c.settle(ctx, core.Snapshot{State: core.StateLoggedOut, Err: cause})
}

func (c *Controller) settle(ctx context.Context, s core.Snapshot) {
	c.update(s)
	if c.refresher != nil {
		c.refresher.Refresh(ctx, s)
	}
}

func (c *Controller) update(s core.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = s
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			// replace the unread value with the latest one
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// classify wraps err as kind, unless the remote end could not be reached.
func classify(kind core.ErrorKind, err error) *core.AuthError {
	if isNetwork(err) {
		kind = core.KindNetworkError
	}
	return &core.AuthError{Kind: kind, Err: err}
}

func isNetwork(err error) bool {
	if errors.Is(err, ports.ErrTransport) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
