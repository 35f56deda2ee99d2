package app

import (
	"sync"

	"classroom-service/internal/domain"
)

// ProgressFeed fans class progress snapshots out to dashboard subscribers.
// Subscribers are per class; slow consumers have stale snapshots dropped so
// a single stuck websocket never blocks a submit request.
type ProgressFeed struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.ClassProgressSnapshot]struct{}
}

func NewProgressFeed() *ProgressFeed {
	return &ProgressFeed{
		subs: make(map[string]map[chan domain.ClassProgressSnapshot]struct{}),
	}
}

// Subscribe returns a channel receiving snapshots for classID.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *ProgressFeed) Subscribe(classID string) (<-chan domain.ClassProgressSnapshot, func()) {
	ch := make(chan domain.ClassProgressSnapshot, 8)

	f.mu.Lock()
	if f.subs[classID] == nil {
		f.subs[classID] = make(map[chan domain.ClassProgressSnapshot]struct{})
	}
	f.subs[classID][ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if set, ok := f.subs[classID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(f.subs, classID)
			}
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers a snapshot to every subscriber of its class.
func (f *ProgressFeed) Publish(snapshot domain.ClassProgressSnapshot) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs[snapshot.ClassID] {
		select {
		case ch <- snapshot:
			continue
		default:
		}
		// Buffer full: evict the stale snapshot, keep the latest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
			// A concurrent publisher refilled the buffer with a snapshot
			// at least as fresh; drop this one.
		}
	}
}
