package balloc

import "sync"

// optionalMutex locks only when the pool was configured for concurrent use.
type optionalMutex struct {
	mutex    sync.Mutex
	useMutex bool
}

func (m *optionalMutex) Lock() {
	if m.useMutex {
		m.mutex.Lock()
	}
}

func (m *optionalMutex) Unlock() {
	if m.useMutex {
		m.mutex.Unlock()
	}
}
