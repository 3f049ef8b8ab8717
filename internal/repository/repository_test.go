package repository

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimit(t *testing.T) {
	repo := NewMemoryRateLimitRepository()
	ctx := context.Background()

	t.Run("allows up to limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "client:a", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed, "request %d", i+1)
		}

		allowed, err := repo.CheckRateLimit(ctx, "client:a", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("keys are independent", func(t *testing.T) {
		allowed, err := repo.CheckRateLimit(ctx, "client:b", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("window reset restores allowance", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := repo.CheckRateLimit(ctx, "client:c", 1, 10*time.Millisecond)
			require.NoError(t, err)
		}
		allowed, err := repo.CheckRateLimit(ctx, "client:c", 1, 10*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, allowed)

		time.Sleep(20 * time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, "client:c", 1, 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("concurrent access is safe", func(t *testing.T) {
		const goroutines = 20
		var wg sync.WaitGroup
		wg.Add(goroutines)
		allowedCount := make(chan bool, goroutines)

		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				allowed, err := repo.CheckRateLimit(ctx, "client:d", 5, time.Minute)
				assert.NoError(t, err)
				allowedCount <- allowed
			}()
		}
		wg.Wait()
		close(allowedCount)

		passed := 0
		for allowed := range allowedCount {
			if allowed {
				passed++
			}
		}
		assert.Equal(t, 5, passed)
	})
}

func TestRedisRateLimit(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	repo := NewRedisRateLimitRepository(client)
	ctx := context.Background()

	t.Run("allows up to limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := repo.CheckRateLimit(ctx, "client:a", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}

		allowed, err := repo.CheckRateLimit(ctx, "client:a", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("window expiry resets counter", func(t *testing.T) {
		allowed, err := repo.CheckRateLimit(ctx, "client:b", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)

		s.FastForward(2 * time.Minute)

		allowed, err = repo.CheckRateLimit(ctx, "client:b", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("nil client errors", func(t *testing.T) {
		broken := NewRedisRateLimitRepository(nil)
		_, err := broken.CheckRateLimit(ctx, "client:x", 1, time.Minute)
		assert.Error(t, err)
	})
}

type flakyRepo struct {
	failing bool
	calls   int
}

func (f *flakyRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.calls++
	if f.failing {
		return false, errors.New("connection refused")
	}
	return true, nil
}

func TestFailoverRateLimit(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	t.Run("primary success passes through", func(t *testing.T) {
		primary := &flakyRepo{}
		fallback := &flakyRepo{}
		repo := NewFailoverRateLimitRepository(primary, fallback, &logger)

		allowed, err := repo.CheckRateLimit(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 0, fallback.calls)
	})

	t.Run("primary failure switches to fallback", func(t *testing.T) {
		primary := &flakyRepo{failing: true}
		fallback := &flakyRepo{}
		repo := NewFailoverRateLimitRepository(primary, fallback, &logger)

		allowed, err := repo.CheckRateLimit(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		assert.Equal(t, 1, fallback.calls)

		// Пока primary помечен как упавший, запросы к нему не идут
		_, err = repo.CheckRateLimit(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, primary.calls)
		assert.Equal(t, 2, fallback.calls)
	})

	t.Run("recovery probe after cooldown", func(t *testing.T) {
		primary := &flakyRepo{failing: true}
		fallback := &flakyRepo{}
		repo := NewFailoverRateLimitRepository(primary, fallback, &logger)

		_, err := repo.CheckRateLimit(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		require.True(t, repo.isDown.Load())

		primary.failing = false
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

		allowed, err := repo.CheckRateLimit(ctx, "k", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, repo.isDown.Load())
	})
}
