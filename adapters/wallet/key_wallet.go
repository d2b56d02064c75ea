// Package wallet provides an in-process wallet backed by a secp256k1 key.
package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/layer-3/authgate/core"
	"github.com/layer-3/authgate/internal/eth"
	"github.com/layer-3/authgate/ports"
)

// ErrNotConnected is returned when signing with a disconnected wallet.
var ErrNotConnected = errors.New("wallet is not connected")

// KeyWallet implements ports.Wallet with a local key
type KeyWallet struct {
	signer eth.Signer

	mu     sync.Mutex
	status core.ConnectionStatus
	closed bool
	events chan core.Connection
}

var _ ports.Wallet = (*KeyWallet)(nil)

// NewKeyWallet returns a disconnected wallet for signer.
func NewKeyWallet(signer eth.Signer) *KeyWallet {
	return &KeyWallet{
		signer: signer,
		status: core.StatusDisconnected,
		events: make(chan core.Connection, 1),
	}
}

// Connect moves the wallet through Connecting to Connected.
func (w *KeyWallet) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.setStatus(core.StatusConnecting)
	w.setStatus(core.StatusConnected)
	return nil
}

// Disconnect drops the connection
func (w *KeyWallet) Disconnect(ctx context.Context) error {
	w.setStatus(core.StatusDisconnected)
	return nil
}

// Connection returns the current connection
func (w *KeyWallet) Connection() core.Connection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connection()
}

// Events returns the connection change stream. Only the latest change is
// buffered; consumers are expected to re-read Connection.
func (w *KeyWallet) Events() <-chan core.Connection {
	return w.events
}

// SignMessage signs message with personal_sign
func (w *KeyWallet) SignMessage(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if w.Connection().Status != core.StatusConnected {
		return "", ErrNotConnected
	}
	sig, err := w.signer.SignText(message)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// Close ends the event stream.
func (w *KeyWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
}

func (w *KeyWallet) connection() core.Connection {
	conn := core.Connection{Status: w.status}
	if w.status != core.StatusDisconnected {
		conn.Address = w.signer.Address().Hex()
	}
	return conn
}

func (w *KeyWallet) setStatus(status core.ConnectionStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == status || w.closed {
		return
	}
	w.status = status

	conn := w.connection()
	select {
	case w.events <- conn:
	default:
		select {
		case <-w.events:
		default:
		}
		w.events <- conn
	}
}
