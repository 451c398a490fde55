package core

import "sync"

// Mutex is a non-reentrant exclusive lock guarding short critical sections.
// Implementations must not be copied after first use.
type Mutex interface {
	Lock()
	Unlock()
}

// threadMutex is backed by sync.Mutex. Unlocking an unlocked sync.Mutex is a
// fatal runtime error, which is the abort behavior we want.
type threadMutex struct {
	mu sync.Mutex
}

func (m *threadMutex) Lock()   { m.mu.Lock() }
func (m *threadMutex) Unlock() { m.mu.Unlock() }

// coopMutex is used when only one execution context exists. Locking never
// contends, but misuse still aborts: with a single context a second Lock can
// never be released.
type coopMutex struct {
	held bool
}

func (m *coopMutex) Lock() {
	if m.held {
		panic("core: cooperative mutex locked twice (deadlock)")
	}
	m.held = true
}

func (m *coopMutex) Unlock() {
	if !m.held {
		panic("core: unlock of unlocked cooperative mutex")
	}
	m.held = false
}

func withLock(m Mutex, fn func()) {
	m.Lock()
	defer m.Unlock()
	fn()
}
