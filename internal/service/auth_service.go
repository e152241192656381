package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/qcom/authgate/internal/models"
	"github.com/qcom/authgate/internal/repository"
	"github.com/sirupsen/logrus"
)

const minPasswordLength = 8

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{3,64}$`)

// UserStore persists user accounts.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, username string) error
}

type CreateUserInput struct {
	Username string
	Password string
	Email    string
	Scopes   []string
}

// UpdateUserInput carries optional changes; nil fields are left alone.
type UpdateUserInput struct {
	Email    *string
	Password *string
	Scopes   *[]string
}

// AuthService ties user accounts to the token lifecycle.
type AuthService struct {
	tokens *TokenService
	users  UserStore
	hasher *PasswordHasher
	logger *logrus.Logger
}

func NewAuthService(tokens *TokenService, users UserStore, hasher *PasswordHasher, logger *logrus.Logger) *AuthService {
	return &AuthService{
		tokens: tokens,
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

// Login checks the password and issues a fresh token pair. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.TokenPair, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.WithError(err).WithField("username", user.Username).Error("Stored password hash is unusable")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, user.Username, user.Scopes)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("username", user.Username).Info("User logged in")
	return pair, nil
}

// RefreshAccess exchanges a refresh token for a new access token.
func (s *AuthService) RefreshAccess(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	access, _, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.Expiry(models.TokenTypeAccess).Seconds()),
	}, nil
}

// Logout revokes every token of the subject.
func (s *AuthService) Logout(ctx context.Context, subject string) error {
	return s.tokens.RevokeAll(ctx, subject)
}

// RevokeToken revokes a single token presented by its holder. Revoking a
// token that is already gone succeeds.
func (s *AuthService) RevokeToken(ctx context.Context, tokenType models.TokenType, token string) error {
	claims, err := s.tokens.Verify(ctx, tokenType, token)
	if err != nil {
		if errors.Is(err, ErrRevoked) {
			return nil
		}
		return err
	}
	return s.tokens.Revoke(ctx, tokenType, claims.ID)
}

// ActiveSessions counts the refresh tokens tracked for a subject.
func (s *AuthService) ActiveSessions(ctx context.Context, subject string) (int, error) {
	return s.tokens.ActiveSessions(ctx, subject)
}

func (s *AuthService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: invalid username", ErrInvalidUser)
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, minPasswordLength)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Email:        strings.TrimSpace(in.Email),
		Scopes:       normalizeScopes(in.Scopes),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.logger.WithField("username", username).Info("User created")
	return user, nil
}

func (s *AuthService) GetUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateUser applies the given changes. Changing the password or the scopes
// revokes every outstanding token of the user, since those tokens carry the
// old scope snapshot.
func (s *AuthService) UpdateUser(ctx context.Context, username string, in UpdateUserInput) (*models.User, error) {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}

	revoke := false
	if in.Email != nil {
		user.Email = strings.TrimSpace(*in.Email)
	}
	if in.Password != nil {
		if len(*in.Password) < minPasswordLength {
			return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, minPasswordLength)
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
		revoke = true
	}
	if in.Scopes != nil {
		scopes := normalizeScopes(*in.Scopes)
		if !slices.Equal(scopes, normalizeScopes(user.Scopes)) {
			user.Scopes = scopes
			revoke = true
		}
	}

	// A changed account is never persisted while its old tokens are live.
	if revoke {
		if err := s.tokens.RevokeAll(ctx, user.Username); err != nil {
			return nil, err
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

// DeleteUser removes the account and revokes every token it still holds.
func (s *AuthService) DeleteUser(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if err := s.users.Delete(ctx, username); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.tokens.RevokeAll(ctx, username); err != nil {
		return err
	}

	s.logger.WithField("username", username).Info("User deleted")
	return nil
}

// normalizeScopes trims, dedupes and sorts a scope list.
func normalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}
