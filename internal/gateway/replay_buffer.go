package gateway

import "sync"

// replayEntry is one broadcast envelope and its sequence number.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the last N summary envelopes so a reconnecting
// dashboard can catch up on what it missed. Safe for concurrent use.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	next    int // slot the next Push writes
	size    int
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
// A capacity <= 0 means 100.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &ReplayBuffer{entries: make([]replayEntry, capacity)}
}

// Push stores a copy of env, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, env []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.next] = replayEntry{Seq: seq, Data: append([]byte(nil), env...)}
	rb.next = (rb.next + 1) % len(rb.entries)
	if rb.size < len(rb.entries) {
		rb.size++
	}
}

// Range returns entries with from <= seq <= to, oldest first.
func (rb *ReplayBuffer) Range(from, to int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	for i := 0; i < rb.size; i++ {
		e := rb.entries[rb.slot(i)]
		if e.Seq >= from && e.Seq <= to {
			out = append(out, e)
		}
	}
	return out
}

// After returns entries newer than seq, oldest first.
func (rb *ReplayBuffer) After(seq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	for i := 0; i < rb.size; i++ {
		if e := rb.entries[rb.slot(i)]; e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Oldest returns the lowest buffered seq, or 0 when empty.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.size == 0 {
		return 0
	}
	return rb.entries[rb.slot(0)].Seq
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// slot maps a logical position (0 = oldest) to an index in entries.
func (rb *ReplayBuffer) slot(i int) int {
	if rb.size < len(rb.entries) {
		return i
	}
	return (rb.next + i) % len(rb.entries)
}
