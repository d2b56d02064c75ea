package core

import "github.com/ethereum/go-ethereum/common"

// ChallengeMessagePrefix is prepended to the challenge token to form the
// human-readable message the wallet signs.
const ChallengeMessagePrefix = "Your authentication token : "

// ChallengeMessage returns the message a wallet signs for the given challenge.
func ChallengeMessage(challenge string) string {
	return ChallengeMessagePrefix + challenge
}

// SameAddress reports whether a and b name the same wallet. Two hex addresses
// are compared by value so checksum casing does not matter; anything else
// must match exactly.
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return a == b
}
