package reservation

import "sync"

// trainLocks hands out one mutex per train.  Trains are never deleted, so
// entries live as long as the engine.
type trainLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// lock acquires the train's mutex and returns its release func.
func (l *trainLocks) lock(trainID int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := l.locks[trainID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[trainID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
