package gateway

import "sync"

type backlogEntry struct {
	seq  int64
	data []byte
}

// Backlog is a fixed-size circular buffer of recently sent frame
// envelopes. A client that detects a sequence gap after a stall asks
// for the missed range instead of reconnecting cold.
//
// Thread-safe for concurrent writes and reads.
type Backlog struct {
	mu   sync.RWMutex
	buf  []backlogEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewBacklog creates a backlog with the given capacity.
func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = 120
	}
	return &Backlog{
		buf: make([]backlogEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope, overwriting the oldest entry when full.
func (b *Backlog) Push(seq int64, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)

	b.buf[b.pos] = backlogEntry{seq: seq, data: cp}
	b.pos = (b.pos + 1) % b.cap
	if b.pos == 0 && !b.full {
		b.full = true
	}
}

// Range returns payloads with seq in [fromSeq, toSeq], oldest first.
func (b *Backlog) Range(fromSeq, toSeq int64) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result [][]byte
	count := b.len()
	for i := 0; i < count; i++ {
		e := b.buf[b.index(i)]
		if e.seq >= fromSeq && e.seq <= toSeq {
			result = append(result, e.data)
		}
	}
	return result
}

// Len returns the number of entries currently buffered.
func (b *Backlog) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.len()
}

func (b *Backlog) len() int {
	if b.full {
		return b.cap
	}
	return b.pos
}

func (b *Backlog) index(logical int) int {
	if b.full {
		return (b.pos + logical) % b.cap
	}
	return logical
}
