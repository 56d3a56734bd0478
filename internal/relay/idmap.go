package relay

import "sync"

// IDMap tracks live notifications for one session, mapping between the
// guest-visible ID handed to the agent and the host-side ID the daemon
// assigned. Guest IDs are allocated here so a guest can neither pick its
// own IDs nor learn the daemon's.
type IDMap struct {
	mu sync.RWMutex

	// Next guest ID candidate
	next uint32

	// Map guest ID to host ID
	byGuest map[uint32]uint32

	// Map host ID to guest ID (for signal translation)
	byHost map[uint32]uint32
}

// NewIDMap creates an empty IDMap. Allocation starts at 1; zero is the
// protocol's "no notification".
func NewIDMap() *IDMap {
	return &IDMap{
		next:    1,
		byGuest: make(map[uint32]uint32),
		byHost:  make(map[uint32]uint32),
	}
}

// Acquire binds hostID to a guest-visible ID and returns that guest ID.
// A nonzero guestID that is still live marks a replacement: the pairing is
// updated in place and the same guest ID comes back. Otherwise a fresh
// guest ID is allocated.
func (m *IDMap) Acquire(hostID, guestID uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if guestID != 0 {
		if oldHost, live := m.byGuest[guestID]; live {
			delete(m.byHost, oldHost)
			m.bind(guestID, hostID)
			return guestID
		}
	}

	id := m.allocate()
	m.bind(id, hostID)
	return id
}

// bind records the pairing, displacing any stale owner of hostID.
func (m *IDMap) bind(guestID, hostID uint32) {
	if oldGuest, taken := m.byHost[hostID]; taken {
		delete(m.byGuest, oldGuest)
	}
	m.byGuest[guestID] = hostID
	m.byHost[hostID] = guestID
}

// allocate returns the next free guest ID, skipping live ones and zero.
func (m *IDMap) allocate() uint32 {
	for {
		id := m.next
		m.next++
		if id == 0 {
			continue
		}
		if _, live := m.byGuest[id]; !live {
			return id
		}
	}
}

// HostFor returns the host ID bound to a guest ID.
func (m *IDMap) HostFor(guestID uint32) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hostID, ok := m.byGuest[guestID]
	return hostID, ok
}

// GuestFor returns the guest ID bound to a host ID.
func (m *IDMap) GuestFor(hostID uint32) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	guestID, ok := m.byHost[hostID]
	return guestID, ok
}

// ReleaseHost removes the pairing for a host ID, returning the guest ID it
// was bound to. Called when the daemon reports the notification closed.
func (m *IDMap) ReleaseHost(hostID uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	guestID, ok := m.byHost[hostID]
	if !ok {
		return 0, false
	}
	delete(m.byHost, hostID)
	delete(m.byGuest, guestID)
	return guestID, true
}

// Clear drops all pairings, returning the guest IDs that were live.
// Called when the daemon restarts.
func (m *IDMap) Clear() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := make([]uint32, 0, len(m.byGuest))
	for guestID := range m.byGuest {
		live = append(live, guestID)
	}
	m.byGuest = make(map[uint32]uint32)
	m.byHost = make(map[uint32]uint32)
	return live
}

// Len returns the number of live pairings.
func (m *IDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byGuest)
}
