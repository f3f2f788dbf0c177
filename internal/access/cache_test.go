package access

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestVersionSurvivesRedisOutage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCache(client, time.Minute)
	require.NoError(t, cache.Bump(context.Background()))

	ver, err := cache.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	mr.Close()

	ver, err = cache.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	key, err := cache.BuildKey(context.Background(), decisionKey("t1", "u1")...)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(key, ":1"))
}

func TestListenForInvalidationMirrorsBumps(t *testing.T) {
	mr := miniredis.RunT(t)
	publisher := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = publisher.Close()
		_ = subscriber.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bumper := NewCache(publisher, time.Minute)
	mirror := NewCache(subscriber, time.Minute)
	require.NoError(t, mirror.ListenForInvalidation(ctx, ""))

	require.Eventually(t, func() bool {
		if err := bumper.Bump(ctx); err != nil {
			return false
		}
		return mirror.local.Load() > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.GreaterOrEqual(t, bumper.local.Load(), mirror.local.Load())
}
