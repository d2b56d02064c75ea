package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/layer-3/authgate/core"
	"github.com/layer-3/authgate/ports"
)

// Config holds the token lifetimes
type Config struct {
	ChallengeTTL time.Duration `env:"AUTHGATE_CHALLENGE_TTL" envDefault:"5m"`
	SessionTTL   time.Duration `env:"AUTHGATE_SESSION_TTL" envDefault:"24h"`
}

// DefaultConfig returns the lifetimes used when none are configured.
func DefaultConfig() Config {
	return Config{
		ChallengeTTL: 5 * time.Minute,
		SessionTTL:   24 * time.Hour,
	}
}

// AuthService handles authentication business logic
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	eventPub  ports.EventPublisher
	logger    *slog.Logger

	challengeTTL time.Duration
	sessionTTL   time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(
	cfg Config,
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.EventPublisher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		tokenizer:    tokenizer,
		store:        store,
		eventPub:     eventPub,
		logger:       logger,
		challengeTTL: cfg.ChallengeTTL,
		sessionTTL:   cfg.SessionTTL,
	}
}

// CreateChallenge issues a single-use challenge for address
func (s *AuthService) CreateChallenge(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", core.ErrInvalidAddress
	}

	// Generate random nonce
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now()
	challenge := &core.Challenge{
		ID:        uuid.New().String(),
		Address:   common.HexToAddress(address).Hex(),
		Nonce:     hex.EncodeToString(nonceBytes),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}

	token, err := s.tokenizer.ChallengeToToken(challenge)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	// A new challenge replaces any outstanding one for the same address
	if err := s.store.PutChallenge(ctx, challenge.Address, token, s.challengeTTL); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}

	return token, nil
}

// Authenticate consumes the outstanding challenge for address, checks the
// signature over it and issues a session token
func (s *AuthService) Authenticate(ctx context.Context, signature, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", core.ErrInvalidAddress
	}
	address = common.HexToAddress(address).Hex()

	challengeToken, err := s.store.TakeChallenge(ctx, address)
	if err != nil {
		return "", err
	}

	challenge, err := s.tokenizer.TokenToChallenge(challengeToken)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInvalidChallenge, err)
	}
	if !core.SameAddress(challenge.Address, address) {
		return "", core.ErrInvalidChallenge
	}

	if err := s.tokenizer.VerifySignature(challengeToken, signature, address); err != nil {
		return "", err
	}

	now := time.Now()
	session := &core.Session{
		ID:        uuid.New().String(),
		Address:   address,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", fmt.Errorf("failed to create session token: %w", err)
	}

	if err := s.eventPub.PublishLogin(ctx, session.Address, session.ID); err != nil {
		s.logger.Warn("failed to publish login event", "address", session.Address, "error", err)
	}
	s.logger.Info("session issued", "address", session.Address, "session_id", session.ID)

	return token, nil
}

// ValidateSession parses a session token and checks it has not been revoked
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, err
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, core.ErrTokenExpired
	}

	invalidated, err := s.store.IsTokenInvalidated(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return nil, core.ErrTokenInvalidated
	}

	return session, nil
}

// CurrentUser returns the identity a session token belongs to
func (s *AuthService) CurrentUser(ctx context.Context, token string) (core.Identity, error) {
	session, err := s.ValidateSession(ctx, token)
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{Username: session.Address}, nil
}

// Logout revokes a session token
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.tokenizer.TokenToSession(token)
	if errors.Is(err, core.ErrTokenExpired) {
		// expired tokens are already unusable
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.InvalidateToken(ctx, session.ID, time.Until(session.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	// The token is already invalidated in the store, which is the critical part
	if err := s.eventPub.PublishLogout(ctx, session.Address, session.ID); err != nil {
		s.logger.Warn("failed to publish logout event", "address", session.Address, "error", err)
	}

	return nil
}
