package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_ExpiresIdleSessions(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	st := newSessionStore(time.Minute, 10)
	st.now = func() time.Time { return now }

	s := st.add(&view{})

	now = now.Add(30 * time.Second)
	got, err := st.get(s.id)
	require.NoError(t, err)
	assert.Same(t, s, got)

	now = now.Add(59 * time.Second)
	_, err = st.get(s.id)
	require.NoError(t, err, "get refreshes the idle timer")

	now = now.Add(2 * time.Minute)
	_, err = st.get(s.id)
	require.ErrorIs(t, err, ErrSessionUnknown)
	assert.Zero(t, st.len())
}

func TestSessionStore_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	st := newSessionStore(time.Hour, 2)
	st.now = func() time.Time { return now }

	first := st.add(&view{})

	now = now.Add(time.Second)
	second := st.add(&view{})

	now = now.Add(time.Second)
	_, err := st.get(first.id)
	require.NoError(t, err)

	now = now.Add(time.Second)
	third := st.add(&view{})

	assert.Equal(t, 2, st.len())

	_, err = st.get(second.id)
	require.ErrorIs(t, err, ErrSessionUnknown)

	_, err = st.get(first.id)
	require.NoError(t, err)

	_, err = st.get(third.id)
	require.NoError(t, err)

	assert.True(t, st.remove(third.id))
	assert.False(t, st.remove(third.id))
}
