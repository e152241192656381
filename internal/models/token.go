package models

import (
	"fmt"
	"time"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenTypes lists every token type in a fixed order.
var TokenTypes = []TokenType{TokenTypeAccess, TokenTypeRefresh}

func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

func ParseTokenType(s string) (TokenType, error) {
	t := TokenType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown token type %q", s)
	}
	return t, nil
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Identity is the authenticated caller attached to a request context.
// It is built once by the auth middleware and never modified afterwards.
type Identity struct {
	subject   string
	scopes    []string
	tokenID   string
	expiresAt time.Time
}

func NewIdentity(subject string, scopes []string, tokenID string, expiresAt time.Time) Identity {
	return Identity{
		subject:   subject,
		scopes:    append([]string(nil), scopes...),
		tokenID:   tokenID,
		expiresAt: expiresAt,
	}
}

func (i Identity) Subject() string { return i.subject }

func (i Identity) TokenID() string { return i.tokenID }

func (i Identity) ExpiresAt() time.Time { return i.expiresAt }

// Scopes returns a copy of the scopes snapshotted at token issuance.
func (i Identity) Scopes() []string {
	return append([]string(nil), i.scopes...)
}

func (i Identity) HasScope(scope string) bool {
	for _, s := range i.scopes {
		if s == scope {
			return true
		}
	}
	return false
}
