package memorystore

import (
	"sync"
	"time"
)

// Listener receives every snapshot passed to Replace.
// The Records slice is shared between listeners and must not be modified.
type Listener func(Snapshot)

type subscription struct {
	id       uint64
	listener Listener
}

// SnapshotStore holds the latest transaction snapshot and fans it out to
// subscribers. Replace is the only mutator.
type SnapshotStore struct {
	replaceMu sync.Mutex // serializes Replace so notifications follow replace order

	mu      sync.RWMutex
	current Snapshot

	subMu  sync.Mutex
	subs   []subscription
	nextID uint64

	now func() time.Time
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		current: Snapshot{Records: []TransactionRecord{}},
		now:     time.Now,
	}
}

// Replace swaps in records as the new snapshot and synchronously notifies
// subscribers in subscription order. Listeners must not call Replace.
func (s *SnapshotStore) Replace(records []TransactionRecord) Snapshot {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()

	stored := make([]TransactionRecord, len(records))
	copy(stored, records)

	s.mu.Lock()
	next := Snapshot{
		Version:   s.current.Version + 1,
		FetchedAt: s.now(),
		Records:   stored,
	}
	s.current = next
	s.mu.Unlock()

	for _, sub := range s.listeners() {
		sub.listener(next)
	}
	return next.clone()
}

// Current returns a copy of the latest snapshot, or the empty snapshot
// before the first Replace.
func (s *SnapshotStore) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Subscribe registers listener for future replacements. The returned
// function removes it and is safe to call more than once.
func (s *SnapshotStore) Subscribe(listener Listener) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, listener: listener})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Subscribers returns the number of registered listeners.
func (s *SnapshotStore) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

func (s *SnapshotStore) remove(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *SnapshotStore) listeners() []subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]subscription, len(s.subs))
	copy(out, s.subs)
	return out
}
