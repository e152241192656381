package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qcom/authgate/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrStoreUnavailable wraps every Redis failure, including timeouts.
var ErrStoreUnavailable = errors.New("redis unavailable")

// TokenRepository keeps the server-side state of issued tokens in Redis:
//
//	<prefix>:allow:<type>:<jti>     -> subject (TTL = token lifetime)
//	<prefix>:token:<type>:<subject> -> set of live jtis
//
// A token is honoured only while its allow record exists.
type TokenRepository struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
	logger    *logrus.Logger
}

func NewTokenRepository(client redis.UniversalClient, prefix string, opTimeout time.Duration, logger *logrus.Logger) *TokenRepository {
	if prefix == "" {
		prefix = "auth"
	}
	return &TokenRepository{
		client:    client,
		prefix:    prefix,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

func (r *TokenRepository) allowKey(tokenType models.TokenType, jti string) string {
	return fmt.Sprintf("%s:allow:%s:%s", r.prefix, tokenType, jti)
}

func (r *TokenRepository) indexKey(tokenType models.TokenType, subject string) string {
	return fmt.Sprintf("%s:token:%s:%s", r.prefix, tokenType, subject)
}

func (r *TokenRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

// Allow records a freshly issued token. The allow record and the subject
// index update are sent as one MULTI/EXEC so readers never see one without
// the other.
func (r *TokenRepository) Allow(ctx context.Context, tokenType models.TokenType, subject, jti string, ttl time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	allowKey := r.allowKey(tokenType, jti)
	indexKey := r.indexKey(tokenType, subject)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, allowKey, subject, ttl)
		pipe.SAdd(ctx, indexKey, jti)
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		r.logger.WithError(err).WithField("token_type", tokenType).Error("Failed to store token allow record")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsAllowed reports whether the allow record of a token still exists.
func (r *TokenRepository) IsAllowed(ctx context.Context, tokenType models.TokenType, jti string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.client.Exists(ctx, r.allowKey(tokenType, jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Revoke removes a single token. Revoking an unknown token is a no-op.
func (r *TokenRepository) Revoke(ctx context.Context, tokenType models.TokenType, jti string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	allowKey := r.allowKey(tokenType, jti)
	subject, err := r.client.Get(ctx, allowKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, allowKey)
		pipe.SRem(ctx, r.indexKey(tokenType, subject), jti)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAll deletes every live token of one type for a subject and returns
// how many ids the index held.
//
// The index is read before the delete batch runs, so a token allowed in
// between survives. Logout-everywhere tolerates that window.
func (r *TokenRepository) RevokeAll(ctx context.Context, tokenType models.TokenType, subject string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	indexKey := r.indexKey(tokenType, subject)
	jtis, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	keys := make([]string, 0, len(jtis))
	for _, jti := range jtis {
		keys = append(keys, r.allowKey(tokenType, jti))
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return len(jtis), nil
}

// ActiveTokenIDs returns the ids tracked in the subject index. Entries may
// outlive their allow record until the index expires.
func (r *TokenRepository) ActiveTokenIDs(ctx context.Context, tokenType models.TokenType, subject string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ids, err := r.client.SMembers(ctx, r.indexKey(tokenType, subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

// Ping checks Redis availability.
func (r *TokenRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
