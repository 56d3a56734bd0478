package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDMapAllocatesSequentially(t *testing.T) {
	m := NewIDMap()

	assert.Equal(t, uint32(1), m.Acquire(100, 0))
	assert.Equal(t, uint32(2), m.Acquire(101, 0))
	assert.Equal(t, uint32(3), m.Acquire(102, 0))
	assert.Equal(t, 3, m.Len())

	hostID, ok := m.HostFor(2)
	require.True(t, ok)
	assert.Equal(t, uint32(101), hostID)

	guestID, ok := m.GuestFor(102)
	require.True(t, ok)
	assert.Equal(t, uint32(3), guestID)
}

func TestIDMapReplacement(t *testing.T) {
	m := NewIDMap()

	guestID := m.Acquire(100, 0)
	require.Equal(t, uint32(1), guestID)

	// Replacing a live notification keeps the guest ID even when the
	// daemon assigns a new host ID.
	assert.Equal(t, guestID, m.Acquire(200, guestID))
	assert.Equal(t, 1, m.Len())

	hostID, ok := m.HostFor(guestID)
	require.True(t, ok)
	assert.Equal(t, uint32(200), hostID)

	_, ok = m.GuestFor(100)
	assert.False(t, ok, "old host binding should be gone")

	back, ok := m.GuestFor(200)
	require.True(t, ok)
	assert.Equal(t, guestID, back)
}

func TestIDMapReplaceUnknownGuest(t *testing.T) {
	m := NewIDMap()

	// A replaces ID that is not live allocates fresh.
	assert.Equal(t, uint32(1), m.Acquire(100, 7))
	assert.Equal(t, 1, m.Len())
}

func TestIDMapReusedHostID(t *testing.T) {
	m := NewIDMap()

	first := m.Acquire(100, 0)
	second := m.Acquire(100, 0)
	require.NotEqual(t, first, second)

	// The daemon reused host ID 100, so the stale pairing must be gone.
	_, ok := m.HostFor(first)
	assert.False(t, ok)

	guestID, ok := m.GuestFor(100)
	require.True(t, ok)
	assert.Equal(t, second, guestID)
	assert.Equal(t, 1, m.Len())
}

func TestIDMapReleaseHost(t *testing.T) {
	m := NewIDMap()

	guestID := m.Acquire(100, 0)

	released, ok := m.ReleaseHost(100)
	require.True(t, ok)
	assert.Equal(t, guestID, released)
	assert.Equal(t, 0, m.Len())

	_, ok = m.ReleaseHost(100)
	assert.False(t, ok)

	_, ok = m.HostFor(guestID)
	assert.False(t, ok)
}

func TestIDMapClear(t *testing.T) {
	m := NewIDMap()

	a := m.Acquire(100, 0)
	b := m.Acquire(101, 0)

	live := m.Clear()
	assert.ElementsMatch(t, []uint32{a, b}, live)
	assert.Equal(t, 0, m.Len())

	_, ok := m.HostFor(a)
	assert.False(t, ok)
	assert.Empty(t, m.Clear())
}

func TestIDMapWrapSkipsZeroAndLive(t *testing.T) {
	m := NewIDMap()
	m.next = ^uint32(0)

	assert.Equal(t, ^uint32(0), m.Acquire(100, 0))

	// The counter wrapped; zero is never handed out.
	assert.Equal(t, uint32(1), m.Acquire(101, 0))

	// And a live ID is skipped on the way past.
	m.next = ^uint32(0)
	assert.Equal(t, uint32(2), m.Acquire(102, 0))
}
