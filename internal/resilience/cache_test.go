package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectorCachePutGet(t *testing.T) {
	c, err := NewConnectorCache[string](4)
	require.NoError(t, err)

	_, ok := c.Get("a")
	require.False(t, ok)

	c.Put("a", "instance-a")
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "instance-a", v)
}

func TestConnectorCacheRemove(t *testing.T) {
	c, err := NewConnectorCache[int](4)
	require.NoError(t, err)
	c.Put("a", 1)
	c.Remove("a")
	_, ok := c.Get("a")
	require.False(t, ok)
}

func TestRecoverReplacesEvictedInstance(t *testing.T) {
	c, err := NewConnectorCache[int](4)
	require.NoError(t, err)
	c.Put("a", 1)

	calls := 0
	inst, err := Recover(context.Background(), c, "a", func(ctx context.Context) (int, error) {
		calls++
		return 2, nil
	}, 3)
	require.NoError(t, err)
	require.Equal(t, 2, inst)
	require.Equal(t, 1, calls)

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestRecoverRetriesUpToMaxAttempts(t *testing.T) {
	c, err := NewConnectorCache[int](4)
	require.NoError(t, err)

	calls := 0
	_, err = Recover(context.Background(), c, "a", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("still down")
	}, 3)
	require.Error(t, err)
	require.Equal(t, 3, calls)
}
