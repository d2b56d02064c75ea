package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a handshake failed.
type ErrorKind int

const (
	KindChallengeFailed ErrorKind = iota + 1
	KindSignatureRejected
	KindAuthenticateFailed
	KindIdentityMismatch
	KindNetworkError
	// KindSessionRejected means the current-user endpoint refused a cached token.
	KindSessionRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindChallengeFailed:
		return "challenge_failed"
	case KindSignatureRejected:
		return "signature_rejected"
	case KindAuthenticateFailed:
		return "authenticate_failed"
	case KindIdentityMismatch:
		return "identity_mismatch"
	case KindNetworkError:
		return "network_error"
	case KindSessionRejected:
		return "session_rejected"
	default:
		return "unknown"
	}
}

// AuthError is the error surfaced to session observers.
type AuthError struct {
	Kind ErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first AuthError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}
