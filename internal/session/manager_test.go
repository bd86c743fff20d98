package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/futsal-booking-session/internal/realtime"
)

func TestManagerOwnership(t *testing.T) {
	m := newTestManager(newPlatform(), realtime.NewBus())
	s := m.Create("user-1", "tok")

	got, err := m.Get(s.ID(), "user-1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(s.ID(), "user-2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Close(s.ID(), "user-2"), ErrNotFound)

	require.NoError(t, m.Close(s.ID(), "user-1"))
	_, err = m.Get(s.ID(), "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Close(s.ID(), "user-1"), ErrNotFound)
}

func TestManagerSweep(t *testing.T) {
	m := newTestManager(newPlatform(), realtime.NewBus())
	now := time.Now()
	m.now = func() time.Time { return now }

	idle := m.Create("user-1", "tok")
	active := m.Create("user-1", "tok")

	now = now.Add(45 * time.Second)
	_, err := m.Get(active.ID(), "user-1")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())

	_, err = m.Get(idle.ID(), "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = idle.Toggle(10)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManagerRunClosesOnShutdown(t *testing.T) {
	m := newTestManager(newPlatform(), realtime.NewBus())
	s := m.Create("user-1", "tok")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Zero(t, m.Len())
	assert.ErrorIs(t, s.OpenCheckout(), ErrClosed)
}
