package dedupe_test

import (
	"testing"
	"time"

	"github.com/leakforge/leakwatch/backend/internal/dedupe"
	"github.com/stretchr/testify/require"
)

func TestCacheSeenDuplicate(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	require.False(t, cache.Seen("alpha"))
	cache.Mark("alpha")
	require.True(t, cache.Seen("alpha"))
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := dedupe.NewCache(10, 20*time.Millisecond)
	require.False(t, cache.Seen("beta"))
	cache.Mark("beta")
	time.Sleep(25 * time.Millisecond)
	require.False(t, cache.Seen("beta"))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := dedupe.NewCache(1, time.Minute)
	require.False(t, cache.Seen("first"))
	cache.Mark("first")

	require.False(t, cache.Seen("second"))
	cache.Mark("second")

	require.False(t, cache.Seen("first"))
	require.True(t, cache.Seen("second"))
}
