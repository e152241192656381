package service

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/qcom/authgate/internal/config"
	"github.com/qcom/authgate/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		AccessSecretKey:  "access-secret-access-secret-0001",
		RefreshSecretKey: "refresh-secret-refresh-secret-01",
		AccessExpiry:     time.Minute,
		RefreshExpiry:    time.Hour,
		Issuer:           "authgate",
		Audience:         "authgate-api",
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type tokenFixture struct {
	svc   *TokenService
	codec *TokenCodec
	repo  *repository.TokenRepository
	clock *fakeClock
	mr    *miniredis.Miniredis
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := testJWTConfig()
	clock := newFakeClock()
	logger := quietLogger()

	codec, err := NewTokenCodec(cfg, clock)
	require.NoError(t, err)
	repo := repository.NewTokenRepository(rdb, "auth", time.Second, logger)
	svc, err := NewTokenService(cfg, codec, repo, clock, logger)
	require.NoError(t, err)

	return &tokenFixture{svc: svc, codec: codec, repo: repo, clock: clock, mr: mr}
}
