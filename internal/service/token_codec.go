package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/qcom/authgate/internal/config"
	"github.com/qcom/authgate/internal/models"
)

// Clock supplies the current time to the codec and the token service.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Claims is the signed payload of an access or refresh token. The jti
// (RegisteredClaims.ID) is the key of the token's revocation record.
type Claims struct {
	Type   models.TokenType `json:"type"`
	Scopes []string         `json:"scopes"`
	jwt.RegisteredClaims
}

// ScopeList returns a copy of the snapshotted scopes.
func (c *Claims) ScopeList() []string {
	return append([]string{}, c.Scopes...)
}

func (c *Claims) Identity() models.Identity {
	var exp time.Time
	if c.ExpiresAt != nil {
		exp = c.ExpiresAt.Time
	}
	return models.NewIdentity(c.Subject, c.Scopes, c.ID, exp)
}

// TokenCodec signs and parses tokens. It performs no I/O.
type TokenCodec struct {
	keys     map[models.TokenType][]byte
	issuer   string
	audience string
	leeway   time.Duration
	clock    Clock
}

func NewTokenCodec(cfg *config.JWTConfig, clock Clock) (*TokenCodec, error) {
	accessKey := []byte(cfg.AccessSecretKey)
	refreshKey := []byte(cfg.RefreshSecretKey)
	if len(accessKey) < 32 || len(refreshKey) < 32 {
		return nil, fmt.Errorf("secret keys must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("invalid leeway configuration")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("issuer and audience are required")
	}
	if clock == nil {
		clock = SystemClock{}
	}

	return &TokenCodec{
		keys: map[models.TokenType][]byte{
			models.TokenTypeAccess:  accessKey,
			models.TokenTypeRefresh: refreshKey,
		},
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		clock:    clock,
	}, nil
}

func (c *TokenCodec) Issuer() string { return c.issuer }

func (c *TokenCodec) Audience() string { return c.audience }

// Encode signs claims with the key of claims.Type.
func (c *TokenCodec) Encode(claims *Claims) (string, error) {
	if claims == nil || claims.Subject == "" {
		return "", fmt.Errorf("claims subject is required")
	}
	key, ok := c.keys[claims.Type]
	if !ok {
		return "", fmt.Errorf("unknown token type %q", claims.Type)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.Type, err)
	}
	return signed, nil
}

// Decode verifies signature, expiry, not-before, issuer and audience, and
// that the token carries the expected type.
func (c *TokenCodec) Decode(tokenString string, expected models.TokenType) (*Claims, error) {
	key, ok := c.keys[expected]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token type %q", ErrMalformedToken, expected)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.clock.Now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !token.Valid {
		return nil, ErrMalformedToken
	}

	if claims.Type != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrMalformedToken, expected, claims.Type)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrMalformedToken)
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
