package gateway

import (
	"sync"

	"trading-signalv1/internal/model"
)

// replayEntry is one broadcast decision and its encoded envelope.
type replayEntry struct {
	Seq      int64
	Decision model.Decision
	Data     []byte
}

// ReplayBuffer is a fixed-size ring of recent decision envelopes. Clients
// that reconnect with ?since=<seq> are caught up from it. Safe for
// concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a buffer holding the last capacity entries
// (default 500).
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push appends an entry, overwriting the oldest when full. data is copied.
func (rb *ReplayBuffer) Push(seq int64, d model.Decision, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buf[rb.pos] = replayEntry{Seq: seq, Decision: d, Data: cp}
	rb.pos = (rb.pos + 1) % len(rb.buf)
	if rb.pos == 0 {
		rb.full = true
	}
}

// Since returns the envelopes with Seq > seq, oldest first.
func (rb *ReplayBuffer) Since(seq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	var out [][]byte
	for i := 0; i < rb.len(); i++ {
		if e := rb.buf[rb.index(i)]; e.Seq > seq {
			out = append(out, e.Data)
		}
	}
	return out
}

// Recent returns up to n decisions, newest first.
func (rb *ReplayBuffer) Recent(n int) []model.Decision {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	count := rb.len()
	if n <= 0 || n > count {
		n = count
	}
	out := make([]model.Decision, 0, n)
	for i := count - 1; i >= count-n; i-- {
		out = append(out, rb.buf[rb.index(i)].Decision)
	}
	return out
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical one.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % len(rb.buf)
	}
	return logical
}
