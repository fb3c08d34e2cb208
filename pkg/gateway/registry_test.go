package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRegistry(t *testing.T) {
	t.Run("track pending requests", func(t *testing.T) {
		r := NewClientRegistry()
		r.Add(&Client{ID: "a", ConnectedAt: time.Now()})

		r.Begin("a")
		infos := r.Snapshot()
		require.Len(t, infos, 1)
		assert.True(t, infos[0].Pending)
		assert.Equal(t, 1, infos[0].Requests)

		r.Finish("a")
		assert.False(t, r.Snapshot()[0].Pending)
	})

	t.Run("report idle connections", func(t *testing.T) {
		r := NewClientRegistry()
		stale := time.Now().Add(-2 * clientIdleAfter)
		r.Add(&Client{ID: "a", ConnectedAt: stale, LastActivity: stale})
		r.Add(&Client{ID: "b", ConnectedAt: time.Now(), LastActivity: time.Now()})

		infos := r.Snapshot()
		require.Len(t, infos, 2)
		assert.Equal(t, "a", infos[0].ID)
		assert.True(t, infos[0].Idle)
		assert.False(t, infos[1].Idle)
	})

	t.Run("remove", func(t *testing.T) {
		r := NewClientRegistry()
		r.Add(&Client{ID: "a"})

		assert.True(t, r.Remove("a"))
		assert.False(t, r.Remove("a"))
		assert.Equal(t, 0, r.Count())
		assert.Empty(t, r.Conns())

		// unknown ids are ignored
		r.Begin("missing")
		r.Finish("missing")
	})
}
