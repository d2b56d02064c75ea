package core

// State is a step of the client session workflow.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// ConnectionStatus is the wallet connection status as reported by the wallet.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Connection is a point-in-time view of the wallet.
type Connection struct {
	Address string
	Status  ConnectionStatus
}

// Active reports whether the wallet has settled on an address.
func (c Connection) Active() bool {
	return c.Address != "" && c.Status == StatusConnected
}

// Snapshot is the observable session state.
type Snapshot struct {
	State State
	Err   *AuthError
}

// Authenticated reports the session flag.
func (s Snapshot) Authenticated() bool { return s.State == StateAuthenticated }

// Authenticating reports the in-progress flag.
func (s Snapshot) Authenticating() bool { return s.State == StateAuthenticating }
