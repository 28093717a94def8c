package presence

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conn struct{ id int }

func TestBindOverwrites(t *testing.T) {
	r := NewRegistry[*conn]()
	u := uuid.New()
	c1, c2 := &conn{1}, &conn{2}

	_, replaced := r.Bind(u, c1)
	assert.False(t, replaced)

	prev, replaced := r.Bind(u, c2)
	require.True(t, replaced)
	assert.Same(t, c1, prev)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Lookup(u)
	require.True(t, ok)
	assert.Same(t, c2, got)

	// rebinding the same handle is not a replacement
	_, replaced = r.Bind(u, c2)
	assert.False(t, replaced)
}

func TestUnbindSupersededConnIsNoop(t *testing.T) {
	r := NewRegistry[*conn]()
	u := uuid.New()
	c1, c2 := &conn{1}, &conn{2}
	r.Bind(u, c1)
	r.Bind(u, c2)

	_, ok := r.UnbindConn(c1)
	assert.False(t, ok)
	assert.True(t, r.IsOnline(u))

	owner, ok := r.UnbindConn(c2)
	require.True(t, ok)
	assert.Equal(t, u, owner)
	assert.False(t, r.IsOnline(u))

	_, ok = r.UnbindConn(c2)
	assert.False(t, ok, "unbind is idempotent")
	_, ok = r.UnbindUser(u)
	assert.False(t, ok)
}

func TestUnknownUserIsOffline(t *testing.T) {
	r := NewRegistry[*conn]()
	assert.False(t, r.IsOnline(uuid.New()))
	assert.Empty(t, r.Snapshot())
}

func TestSnapshotSorted(t *testing.T) {
	r := NewRegistry[*conn]()
	for i := 0; i < 5; i++ {
		r.Bind(uuid.New(), &conn{i})
	}
	snap := r.Snapshot()
	require.Len(t, snap, 5)
	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].String(), snap[i].String())
	}
}

// Random bind/unbind sequences checked against a trivial model.
func TestRegistryMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	conns := make([]*conn, 6)
	for i := range conns {
		conns[i] = &conn{i}
	}

	r := NewRegistry[*conn]()
	model := map[uuid.UUID]*conn{}
	owner := map[*conn]uuid.UUID{}

	for step := 0; step < 500; step++ {
		u := users[rng.Intn(len(users))]
		c := conns[rng.Intn(len(conns))]
		switch rng.Intn(3) {
		case 0:
			if prevOwner, ok := owner[c]; ok {
				delete(model, prevOwner)
			}
			if old, ok := model[u]; ok {
				delete(owner, old)
			}
			model[u] = c
			owner[c] = u
			r.Bind(u, c)
		case 1:
			if o, ok := owner[c]; ok {
				delete(model, o)
				delete(owner, c)
			}
			r.UnbindConn(c)
		case 2:
			if old, ok := model[u]; ok {
				delete(owner, old)
				delete(model, u)
			}
			r.UnbindUser(u)
		}

		for _, id := range users {
			_, want := model[id]
			require.Equal(t, want, r.IsOnline(id), "step %d", step)
		}
		require.Equal(t, len(model), r.Len())
	}
}
