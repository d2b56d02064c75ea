package ports

import "github.com/layer-3/authgate/core"

// Tokenizer converts between domain objects and tokens
type Tokenizer interface {
	// Challenge token operations
	ChallengeToToken(challenge *core.Challenge) (string, error)
	TokenToChallenge(token string) (*core.Challenge, error)

	// Session token operations
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)

	// VerifySignature checks that signature is address's personal_sign of the
	// challenge message built from challengeToken.
	VerifySignature(challengeToken string, signature string, address string) error
}
