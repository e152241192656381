package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/qcom/authgate/internal/config"
	"github.com/qcom/authgate/internal/models"
	"github.com/sirupsen/logrus"
)

// TokenStore is the server-side record of live tokens.
type TokenStore interface {
	Allow(ctx context.Context, tokenType models.TokenType, subject, jti string, ttl time.Duration) error
	IsAllowed(ctx context.Context, tokenType models.TokenType, jti string) (bool, error)
	Revoke(ctx context.Context, tokenType models.TokenType, jti string) error
	RevokeAll(ctx context.Context, tokenType models.TokenType, subject string) (int, error)
	ActiveTokenIDs(ctx context.Context, tokenType models.TokenType, subject string) ([]string, error)
}

// TokenService issues, verifies, refreshes and revokes tokens. A token is
// valid only while its signature checks out and its allow record exists.
type TokenService struct {
	codec  *TokenCodec
	store  TokenStore
	ttls   map[models.TokenType]time.Duration
	clock  Clock
	logger *logrus.Logger
}

func NewTokenService(cfg *config.JWTConfig, codec *TokenCodec, store TokenStore, clock Clock, logger *logrus.Logger) (*TokenService, error) {
	if cfg.AccessExpiry < time.Second || cfg.RefreshExpiry < time.Second {
		return nil, fmt.Errorf("token expiries must be at least one second")
	}
	if clock == nil {
		clock = SystemClock{}
	}

	return &TokenService{
		codec: codec,
		store: store,
		ttls: map[models.TokenType]time.Duration{
			models.TokenTypeAccess:  cfg.AccessExpiry,
			models.TokenTypeRefresh: cfg.RefreshExpiry,
		},
		clock:  clock,
		logger: logger,
	}, nil
}

// Expiry returns the configured lifetime of a token type.
func (s *TokenService) Expiry(tokenType models.TokenType) time.Duration {
	return s.ttls[tokenType]
}

// Create issues a new token and records it in the store. Tokens for the
// same subject are additive; earlier ones stay valid.
func (s *TokenService) Create(ctx context.Context, tokenType models.TokenType, subject string, scopes []string) (string, error) {
	ttl, ok := s.ttls[tokenType]
	if !ok {
		return "", fmt.Errorf("unknown token type %q", tokenType)
	}
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}

	now := s.clock.Now()
	jti := uuid.New().String()
	claims := &Claims{
		Type:   tokenType,
		Scopes: append([]string{}, scopes...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			Issuer:    s.codec.Issuer(),
			Audience:  jwt.ClaimStrings{s.codec.Audience()},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := s.codec.Encode(claims)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign token")
		return "", err
	}

	if err := s.store.Allow(ctx, tokenType, subject, jti, ttl); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	s.logger.WithFields(logrus.Fields{
		"subject":    subject,
		"token_type": tokenType,
		"jti":        jti,
	}).Debug("Token issued")

	return token, nil
}

// IssuePair creates an access and a refresh token for a freshly
// authenticated subject.
func (s *TokenService) IssuePair(ctx context.Context, subject string, scopes []string) (*models.TokenPair, error) {
	access, err := s.Create(ctx, models.TokenTypeAccess, subject, scopes)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Create(ctx, models.TokenTypeRefresh, subject, scopes)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.ttls[models.TokenTypeAccess].Seconds()),
	}, nil
}

// Verify decodes the token and checks its allow record. Codec errors are
// returned unchanged; a missing record is ErrRevoked and a store failure is
// ErrDependencyUnavailable.
func (s *TokenService) Verify(ctx context.Context, tokenType models.TokenType, token string) (*Claims, error) {
	claims, err := s.codec.Decode(token, tokenType)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: token type mismatch", ErrMalformedToken)
	}

	allowed, err := s.store.IsAllowed(ctx, tokenType, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	if !allowed {
		return nil, ErrRevoked
	}

	return claims, nil
}

// Refresh verifies a refresh token and mints a new access token carrying
// the same subject and scopes. The refresh token itself is not consumed.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, *Claims, error) {
	refreshClaims, err := s.Verify(ctx, models.TokenTypeRefresh, refreshToken)
	if err != nil {
		return "", nil, err
	}

	access, err := s.Create(ctx, models.TokenTypeAccess, refreshClaims.Subject, refreshClaims.Scopes)
	if err != nil {
		return "", nil, err
	}

	// Decode our own token so callers get the claims of what was issued.
	accessClaims, err := s.codec.Decode(access, models.TokenTypeAccess)
	if err != nil {
		return "", nil, err
	}

	return access, accessClaims, nil
}

// Revoke invalidates one token by id.
func (s *TokenService) Revoke(ctx context.Context, tokenType models.TokenType, jti string) error {
	if err := s.store.Revoke(ctx, tokenType, jti); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	return nil
}

// RevokeAll invalidates every live access and refresh token of a subject.
// Tokens issued concurrently with the call may survive it.
func (s *TokenService) RevokeAll(ctx context.Context, subject string) error {
	total := 0
	for _, tokenType := range models.TokenTypes {
		n, err := s.store.RevokeAll(ctx, tokenType, subject)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
		total += n
	}

	s.logger.WithFields(logrus.Fields{
		"subject": subject,
		"revoked": total,
	}).Info("Revoked all tokens for subject")
	return nil
}

// ActiveSessions returns the number of refresh tokens tracked for a subject.
func (s *TokenService) ActiveSessions(ctx context.Context, subject string) (int, error) {
	ids, err := s.store.ActiveTokenIDs(ctx, models.TokenTypeRefresh, subject)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	return len(ids), nil
}

// ExtractBearer parses an "Authorization: Bearer <token>" value. It returns
// false when no usable credential is present, which callers treat
// differently from a rejected credential.
func ExtractBearer(headerValue string) (string, bool) {
	parts := strings.Fields(headerValue)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
