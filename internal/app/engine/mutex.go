package engine

import "sync"

// commandMutex is a single-slot lock with a FIFO queue of waiters.
// Waiting callers are released in arrival order, so commands for one
// room never starve and never interleave.
type commandMutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// Lock blocks until the slot is free, queueing behind earlier callers.
func (m *commandMutex) Lock() {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()
	<-ch
}

// TryLock acquires the slot only when free. Event handlers use this to
// skip work when a command already holds the room.
func (m *commandMutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

// Unlock hands the slot to the oldest waiter, or frees it.
func (m *commandMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.waiters) > 0 {
		ch := m.waiters[0]
		m.waiters = m.waiters[1:]
		close(ch)
		return
	}
	m.locked = false
}
