package repository

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/qcom/authgate/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTokenRepositoryTest(t *testing.T) (*TokenRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewTokenRepository(rdb, "auth", time.Second, logger), mr
}

func TestAllowWritesRecordAndIndex(t *testing.T) {
	repo, mr := newTokenRepositoryTest(t)
	ctx := context.Background()

	require.NoError(t, repo.Allow(ctx, models.TokenTypeAccess, "alice", "jti-1", 10*time.Minute))

	subject, err := mr.Get("auth:allow:access:jti-1")
	require.NoError(t, err)
	require.Equal(t, "alice", subject)
	require.Equal(t, 10*time.Minute, mr.TTL("auth:allow:access:jti-1"))

	members, err := mr.SMembers("auth:token:access:alice")
	require.NoError(t, err)
	require.Equal(t, []string{"jti-1"}, members)
	require.Equal(t, 10*time.Minute, mr.TTL("auth:token:access:alice"))

	ok, err := repo.IsAllowed(ctx, models.TokenTypeAccess, "jti-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.IsAllowed(ctx, models.TokenTypeRefresh, "jti-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAllowRecordExpires(t *testing.T) {
	repo, mr := newTokenRepositoryTest(t)
	ctx := context.Background()

	require.NoError(t, repo.Allow(ctx, models.TokenTypeAccess, "alice", "jti-1", time.Minute))
	mr.FastForward(time.Minute + time.Second)

	ok, err := repo.IsAllowed(ctx, models.TokenTypeAccess, "jti-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRevokeIsIdempotent(t *testing.T) {
	repo, mr := newTokenRepositoryTest(t)
	ctx := context.Background()

	require.NoError(t, repo.Allow(ctx, models.TokenTypeRefresh, "alice", "jti-1", time.Hour))
	require.NoError(t, repo.Allow(ctx, models.TokenTypeRefresh, "alice", "jti-2", time.Hour))

	require.NoError(t, repo.Revoke(ctx, models.TokenTypeRefresh, "jti-1"))
	require.NoError(t, repo.Revoke(ctx, models.TokenTypeRefresh, "jti-1"))

	require.False(t, mr.Exists("auth:allow:refresh:jti-1"))
	members, err := mr.SMembers("auth:token:refresh:alice")
	require.NoError(t, err)
	require.Equal(t, []string{"jti-2"}, members)
}

func TestRevokeAllClearsSubject(t *testing.T) {
	repo, mr := newTokenRepositoryTest(t)
	ctx := context.Background()

	for _, jti := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Allow(ctx, models.TokenTypeAccess, "alice", jti, time.Hour))
	}
	require.NoError(t, repo.Allow(ctx, models.TokenTypeAccess, "bob", "d", time.Hour))

	n, err := repo.RevokeAll(ctx, models.TokenTypeAccess, "alice")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for _, jti := range []string{"a", "b", "c"} {
		require.False(t, mr.Exists("auth:allow:access:"+jti))
	}
	require.False(t, mr.Exists("auth:token:access:alice"))
	require.True(t, mr.Exists("auth:allow:access:d"))

	n, err = repo.RevokeAll(ctx, models.TokenTypeAccess, "alice")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestActiveTokenIDs(t *testing.T) {
	repo, _ := newTokenRepositoryTest(t)
	ctx := context.Background()

	ids, err := repo.ActiveTokenIDs(ctx, models.TokenTypeAccess, "nobody")
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, repo.Allow(ctx, models.TokenTypeAccess, "alice", "a", time.Hour))
	require.NoError(t, repo.Allow(ctx, models.TokenTypeAccess, "alice", "b", time.Hour))

	ids, err = repo.ActiveTokenIDs(ctx, models.TokenTypeAccess, "alice")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestStoreUnavailable(t *testing.T) {
	repo, mr := newTokenRepositoryTest(t)
	ctx := context.Background()
	mr.Close()

	_, err := repo.IsAllowed(ctx, models.TokenTypeAccess, "jti-1")
	require.ErrorIs(t, err, ErrStoreUnavailable)

	err = repo.Allow(ctx, models.TokenTypeAccess, "alice", "jti-1", time.Minute)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = repo.RevokeAll(ctx, models.TokenTypeAccess, "alice")
	require.ErrorIs(t, err, ErrStoreUnavailable)

	require.ErrorIs(t, repo.Ping(ctx), ErrStoreUnavailable)
}

// silentListener accepts connections and never answers them.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			conn.Close()
		}
	})
	return ln.Addr().String()
}

func TestOperationTimeoutOnUnresponsiveStore(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:                  silentListener(t),
		MaxRetries:            -1,
		ContextTimeoutEnabled: true,
	})
	t.Cleanup(func() { rdb.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	repo := NewTokenRepository(rdb, "auth", 150*time.Millisecond, logger)

	start := time.Now()
	_, err := repo.IsAllowed(context.Background(), models.TokenTypeAccess, "jti-1")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Less(t, time.Since(start), time.Second)

	start = time.Now()
	err = repo.Allow(context.Background(), models.TokenTypeAccess, "alice", "jti-1", time.Minute)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Less(t, time.Since(start), time.Second)
}
