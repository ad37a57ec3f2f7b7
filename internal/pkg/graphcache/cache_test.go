package graphcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
)

func TestCacheGetSet(t *testing.T) {
	c := New(8, time.Minute)
	g := &models.RBACGraph{SchemaVersion: "1.0"}
	k := Key("abc", "{}", "{}")

	_, ok := c.Get(k)
	assert.False(t, ok)

	c.Set(k, g)
	got, ok := c.Get(k)
	require.True(t, ok)
	assert.Same(t, g, got)
}

func TestCacheDisabled(t *testing.T) {
	c := New(0, time.Minute)
	c.Set("k", &models.RBACGraph{})
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.InvalidateDigest("k"))
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", &models.RBACGraph{})
	c.Set("b", &models.RBACGraph{})
	_, _ = c.Get("a")
	c.Set("c", &models.RBACGraph{})

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestCacheExpires(t *testing.T) {
	c := New(4, 20*time.Millisecond)
	c.Set("k", &models.RBACGraph{})
	assert.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCacheInvalidateDigest(t *testing.T) {
	c := New(8, time.Minute)
	c.Set(Key("d1", "f1", "l"), &models.RBACGraph{})
	c.Set(Key("d1", "f2", "l"), &models.RBACGraph{})
	c.Set(Key("d2", "f1", "l"), &models.RBACGraph{})

	assert.Equal(t, 2, c.InvalidateDigest("d1"))
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(Key("d2", "f1", "l"))
	assert.True(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
