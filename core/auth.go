package core

import "time"

// Challenge represents an authentication challenge
type Challenge struct {
	ID        string    // Unique identifier for the challenge
	Address   string    // Ethereum address the challenge was issued to
	Nonce     string    // Random nonce bound into the challenge token
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}

// Session represents an authenticated wallet session
type Session struct {
	ID        string    // Unique session identifier, also the revocation key
	Address   string    // Ethereum address of the wallet
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session token stops being accepted
}

// Identity is what the current-user endpoint reports for a session token.
type Identity struct {
	Username string `json:"username"`
}
