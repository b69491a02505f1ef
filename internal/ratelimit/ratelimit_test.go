package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMemoryWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(2, time.Minute)
	m.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, _, err := m.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	now = now.Add(20 * time.Second)
	ok, retry, err := m.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	ok, _, err = m.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	now = now.Add(41 * time.Second)
	ok, _, err = m.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "window reset")
}

func TestMemorySweepsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMemory(1, time.Second)
	m.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		_, _, _ = m.Allow(ctx, fmt.Sprintf("k%d", i))
	}
	now = now.Add(2 * time.Second)
	_, _, _ = m.Allow(ctx, "fresh")
	assert.Len(t, m.windows, 1)
}

func TestRedisLimiter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb, err := Dial(ctx, "redis://"+endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedis(rdb, 3, time.Minute)
	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Minute)

	ok, _, err = l.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDialBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "::not a url")
	assert.Error(t, err)
}

var (
	_ Limiter = (*Memory)(nil)
	_ Limiter = (*Redis)(nil)
)
