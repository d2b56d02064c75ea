package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/authgate/core"
	"github.com/layer-3/authgate/internal/logging"
	"github.com/layer-3/authgate/ports"
)

type fakeWallet struct {
	mu          sync.Mutex
	conn        core.Connection
	events      chan core.Connection
	signErr     error
	signed      []string
	disconnects int
}

func newFakeWallet(address string, status core.ConnectionStatus) *fakeWallet {
	return &fakeWallet{
		conn:   core.Connection{Address: address, Status: status},
		events: make(chan core.Connection, 8),
	}
}

func (w *fakeWallet) Connection() core.Connection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

func (w *fakeWallet) Events() <-chan core.Connection { return w.events }

func (w *fakeWallet) set(conn core.Connection) {
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.events <- conn
}

func (w *fakeWallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disconnects++
	w.conn = core.Connection{Status: core.StatusDisconnected}
	return nil
}

func (w *fakeWallet) SignMessage(ctx context.Context, message string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.signErr != nil {
		return "", w.signErr
	}
	w.signed = append(w.signed, message)
	return "0xsig", nil
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []string
	challenge string
	jwt       string
	identity  string

	challengeErr error
	authErr      error
	userErr      error

	// when set, Challenge signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (a *fakeAPI) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *fakeAPI) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeAPI) Challenge(ctx context.Context, address string) (string, error) {
	a.record("challenge:" + address)
	if a.entered != nil {
		a.entered <- struct{}{}
		<-a.release
	}
	return a.challenge, a.challengeErr
}

func (a *fakeAPI) Authenticate(ctx context.Context, signature, address string) (string, error) {
	a.record("authenticate:" + signature + ":" + address)
	return a.jwt, a.authErr
}

func (a *fakeAPI) CurrentUser(ctx context.Context, token string) (core.Identity, error) {
	a.record("me:" + token)
	return core.Identity{Username: a.identity}, a.userErr
}

type memTokens struct {
	mu    sync.Mutex
	token string
	ok    bool
}

func (m *memTokens) Get() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.ok
}

func (m *memTokens) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.ok = token, true
	return nil
}

func (m *memTokens) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.ok = "", false
	return nil
}

type countingRefresher struct {
	mu    sync.Mutex
	calls []core.Snapshot
}

func (r *countingRefresher) Refresh(ctx context.Context, s core.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newController(w *fakeWallet, api *fakeAPI, tokens *memTokens, r *countingRefresher) *Controller {
	return NewController(w, api, tokens, WithRefresher(r), WithLogger(logging.Discard()))
}

func TestMountWithoutTokenOrWallet(t *testing.T) {
	w := newFakeWallet("", core.StatusDisconnected)
	api := &fakeAPI{}
	r := &countingRefresher{}
	c := newController(w, api, &memTokens{}, r)

	c.Mount(context.Background())

	s := c.State()
	assert.Equal(t, core.StateLoggedOut, s.State)
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.Err)
	assert.Empty(t, api.Calls())
	assert.Equal(t, 0, w.disconnects)
	assert.Equal(t, 1, r.count())
}

func TestMountValidatesCachedToken(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{identity: "0xABC"}
	tokens := &memTokens{token: "jwt-1", ok: true}
	c := newController(w, api, tokens, &countingRefresher{})

	c.Mount(context.Background())

	assert.True(t, c.State().Authenticated())
	assert.Equal(t, []string{"me:jwt-1"}, api.Calls())
	token, ok := tokens.Get()
	assert.True(t, ok)
	assert.Equal(t, "jwt-1", token)
}

func TestIdentityComparisonIgnoresChecksumCase(t *testing.T) {
	const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	w := newFakeWallet(checksummed, core.StatusConnected)
	api := &fakeAPI{identity: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"}
	c := newController(w, api, &memTokens{token: "jwt-1", ok: true}, &countingRefresher{})

	c.Sync(context.Background())

	assert.True(t, c.State().Authenticated())
}

func TestMountIdentityMismatchLogsOut(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{identity: "0xDEF"}
	tokens := &memTokens{token: "jwt-1", ok: true}
	c := newController(w, api, tokens, &countingRefresher{})

	c.Mount(context.Background())

	s := c.State()
	assert.Equal(t, core.StateLoggedOut, s.State)
	require.NotNil(t, s.Err)
	assert.Equal(t, core.KindIdentityMismatch, s.Err.Kind)
	_, ok := tokens.Get()
	assert.False(t, ok)
	assert.Equal(t, 1, w.disconnects)
	assert.Equal(t, []string{"me:jwt-1"}, api.Calls())
}

func TestHandshakeScenario(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{challenge: "tok123", jwt: "jwt-xyz"}
	tokens := &memTokens{}
	r := &countingRefresher{}
	c := newController(w, api, tokens, r)

	c.Sync(context.Background())

	assert.Equal(t, []string{"challenge:0xABC", "authenticate:0xsig:0xABC"}, api.Calls())
	assert.Equal(t, []string{"Your authentication token : tok123"}, w.signed)
	token, ok := tokens.Get()
	require.True(t, ok)
	assert.Equal(t, "jwt-xyz", token)
	assert.True(t, c.State().Authenticated())
	assert.Equal(t, 1, r.count())
}

func TestMountHandshakesConnectedWalletWithoutToken(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{challenge: "tok123", jwt: "jwt-xyz"}
	c := newController(w, api, &memTokens{}, &countingRefresher{})

	c.Mount(context.Background())

	assert.True(t, c.State().Authenticated())
	assert.Equal(t, []string{"challenge:0xABC", "authenticate:0xsig:0xABC"}, api.Calls())
}

func TestLogoutIsIdempotent(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{identity: "0xABC"}
	tokens := &memTokens{token: "jwt-1", ok: true}
	r := &countingRefresher{}
	c := newController(w, api, tokens, r)

	c.Mount(context.Background())
	require.True(t, c.State().Authenticated())

	c.Logout(context.Background())
	assert.Equal(t, core.StateLoggedOut, c.State().State)
	_, ok := tokens.Get()
	assert.False(t, ok)
	assert.Equal(t, 1, w.disconnects)

	calls, refreshes := len(api.Calls()), r.count()
	c.Logout(context.Background())
	assert.Equal(t, core.StateLoggedOut, c.State().State)
	assert.Len(t, api.Calls(), calls)
	assert.Equal(t, refreshes+1, r.count())
	assert.Equal(t, 1, w.disconnects)
}

func TestLogoutDisconnectsWalletAfterPassiveLogout(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnecting)
	api := &fakeAPI{challenge: "tok123", jwt: "jwt-xyz", identity: "0xABC"}
	tokens := &memTokens{}
	c := newController(w, api, tokens, &countingRefresher{})

	c.Mount(context.Background())
	require.Equal(t, core.StateLoggedOut, c.State().State)
	require.Equal(t, 0, w.disconnects)

	c.Logout(context.Background())
	assert.Equal(t, core.StateLoggedOut, c.State().State)
	assert.Equal(t, 1, w.disconnects)
	assert.Equal(t, core.StatusDisconnected, w.Connection().Status)

	c.Sync(context.Background())
	assert.Equal(t, core.StateLoggedOut, c.State().State)
	assert.Empty(t, api.Calls())
	_, ok := tokens.Get()
	assert.False(t, ok)
}

func TestStaleErrorClearedOnceWalletIsGone(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{challengeErr: context.DeadlineExceeded}
	r := &countingRefresher{}
	c := newController(w, api, &memTokens{}, r)

	c.Sync(context.Background())
	s := c.State()
	require.NotNil(t, s.Err)
	assert.Equal(t, core.KindNetworkError, s.Err.Kind)
	require.Equal(t, core.StatusDisconnected, w.Connection().Status)
	refreshes := r.count()

	c.Sync(context.Background())

	s = c.State()
	assert.Equal(t, core.StateLoggedOut, s.State)
	assert.Nil(t, s.Err)
	assert.Len(t, api.Calls(), 1)
	assert.Equal(t, 1, w.disconnects)
	assert.Equal(t, refreshes+1, r.count())
}

func TestHandshakeFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(w *fakeWallet, api *fakeAPI)
		kind  core.ErrorKind
	}{
		{
			name:  "challenge endpoint error",
			setup: func(w *fakeWallet, api *fakeAPI) { api.challengeErr = boom },
			kind:  core.KindChallengeFailed,
		},
		{
			name:  "signature rejected",
			setup: func(w *fakeWallet, api *fakeAPI) { w.signErr = errors.New("user rejected request") },
			kind:  core.KindSignatureRejected,
		},
		{
			name:  "authenticate endpoint error",
			setup: func(w *fakeWallet, api *fakeAPI) { api.authErr = boom },
			kind:  core.KindAuthenticateFailed,
		},
		{
			name:  "challenge unreachable",
			setup: func(w *fakeWallet, api *fakeAPI) { api.challengeErr = fmt.Errorf("dial: %w", ports.ErrTransport) },
			kind:  core.KindNetworkError,
		},
		{
			name:  "authenticate timed out",
			setup: func(w *fakeWallet, api *fakeAPI) { api.authErr = context.DeadlineExceeded },
			kind:  core.KindNetworkError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWallet("0xABC", core.StatusConnected)
			api := &fakeAPI{challenge: "tok123", jwt: "jwt-xyz"}
			tt.setup(w, api)
			tokens := &memTokens{}
			c := newController(w, api, tokens, &countingRefresher{})

			c.Sync(context.Background())

			s := c.State()
			assert.Equal(t, core.StateLoggedOut, s.State)
			require.NotNil(t, s.Err)
			assert.Equal(t, tt.kind, s.Err.Kind)
			assert.Equal(t, tt.kind, core.KindOf(s.Err))
			_, ok := tokens.Get()
			assert.False(t, ok)
			assert.Equal(t, 1, w.disconnects)
		})
	}
}

func TestRejectedSessionLogsOut(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{userErr: errors.New("401 unauthorized")}
	tokens := &memTokens{token: "expired", ok: true}
	c := newController(w, api, tokens, &countingRefresher{})

	c.Sync(context.Background())

	s := c.State()
	assert.Equal(t, core.StateLoggedOut, s.State)
	require.NotNil(t, s.Err)
	assert.Equal(t, core.KindSessionRejected, s.Err.Kind)
	_, ok := tokens.Get()
	assert.False(t, ok)
}

func TestErrorIsResetOnNextRun(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{challengeErr: errors.New("boom")}
	c := newController(w, api, &memTokens{}, &countingRefresher{})

	c.Sync(context.Background())
	require.NotNil(t, c.State().Err)

	api.challengeErr = nil
	api.challenge, api.jwt = "tok", "jwt"
	w.conn = core.Connection{Address: "0xABC", Status: core.StatusConnected}
	c.Sync(context.Background())

	assert.True(t, c.State().Authenticated())
	assert.Nil(t, c.State().Err)
}

func TestSyncIgnoresConnectingWallet(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnecting)
	api := &fakeAPI{}
	r := &countingRefresher{}
	c := newController(w, api, &memTokens{}, r)

	c.Sync(context.Background())

	assert.Equal(t, core.StateUnauthenticated, c.State().State)
	assert.Empty(t, api.Calls())
	assert.Equal(t, 0, r.count())
}

func TestWalletDisconnectEndsSession(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{identity: "0xABC"}
	tokens := &memTokens{token: "jwt-1", ok: true}
	c := newController(w, api, tokens, &countingRefresher{})

	c.Sync(context.Background())
	require.True(t, c.State().Authenticated())

	w.conn = core.Connection{Status: core.StatusDisconnected}
	c.Sync(context.Background())

	assert.Equal(t, core.StateLoggedOut, c.State().State)
	_, ok := tokens.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, w.disconnects)
}

func TestTriggersDuringHandshakeAreCoalesced(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{
		challenge: "tok123",
		jwt:       "jwt-xyz",
		identity:  "0xABC",
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	tokens := &memTokens{}
	c := newController(w, api, tokens, &countingRefresher{})

	done := make(chan struct{})
	go func() {
		c.Sync(context.Background())
		close(done)
	}()

	<-api.entered
	assert.True(t, c.State().Authenticating())

	// both return immediately and collapse into one follow-up run
	c.Sync(context.Background())
	c.Mount(context.Background())

	close(api.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not settle")
	}

	assert.Equal(t, []string{
		"challenge:0xABC",
		"authenticate:0xsig:0xABC",
		"me:jwt-xyz",
	}, api.Calls())
	assert.True(t, c.State().Authenticated())
}

func TestQueuedLogoutIsNotReplaced(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{
		challenge: "tok123",
		jwt:       "jwt-xyz",
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	tokens := &memTokens{}
	c := newController(w, api, tokens, &countingRefresher{})

	done := make(chan struct{})
	go func() {
		c.Sync(context.Background())
		close(done)
	}()

	<-api.entered
	c.Logout(context.Background())
	c.Sync(context.Background())
	close(api.release)
	<-done

	assert.Equal(t, core.StateLoggedOut, c.State().State)
	_, ok := tokens.Get()
	assert.False(t, ok)
	assert.Equal(t, 1, w.disconnects)
}

func TestSubscribe(t *testing.T) {
	w := newFakeWallet("0xABC", core.StatusConnected)
	api := &fakeAPI{identity: "0xABC"}
	c := newController(w, api, &memTokens{token: "jwt-1", ok: true}, &countingRefresher{})

	updates, cancel := c.Subscribe()
	c.Mount(context.Background())

	// the buffer keeps only the latest state
	s := <-updates
	assert.Equal(t, core.StateAuthenticated, s.State)

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestRunFollowsWalletEvents(t *testing.T) {
	w := newFakeWallet("", core.StatusDisconnected)
	// the second event may re-validate the fresh token
	api := &fakeAPI{challenge: "tok123", jwt: "jwt-xyz", identity: "0xABC"}
	tokens := &memTokens{}
	c := newController(w, api, tokens, &countingRefresher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return c.State().State == core.StateLoggedOut
	}, time.Second, 10*time.Millisecond)

	w.set(core.Connection{Address: "0xABC", Status: core.StatusConnecting})
	w.set(core.Connection{Address: "0xABC", Status: core.StatusConnected})

	require.Eventually(t, func() bool {
		return c.State().Authenticated()
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	c.Close()
}
