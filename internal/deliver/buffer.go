package deliver

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/CrashxZ/AF25/internal/state"
)

// Mode selects the buffer's retention and send discipline.
type Mode int

const (
	// ModeLatest keeps at most one snapshot; each new one replaces it.
	// One snapshot is sent per interval. This is the default.
	ModeLatest Mode = iota
	// ModeFIFO queues every snapshot and sends the oldest first, one per
	// interval; a failed send goes back to the head.
	ModeFIFO
	// ModeBatch queues every snapshot and sends the whole buffer as one
	// JSON array per interval.
	ModeBatch
)

func (m Mode) String() string {
	switch m {
	case ModeLatest:
		return "latest"
	case ModeFIFO:
		return "fifo"
	case ModeBatch:
		return "batch"
	}
	return "unknown"
}

// Poster sends one payload to one URL. *Client implements it; tests
// substitute stubs.
type Poster interface {
	Post(url string, payload any) error
}

// Stats are the delivery diagnostics counters.
type Stats struct {
	PostedBatches   int64 `json:"posted_batches"`
	PostedSnapshots int64 `json:"posted_snapshots"`
	PostErrors      int64 `json:"post_errors"`
}

// Buffer holds snapshots awaiting delivery and flushes them on an
// interval schedule. It is owned by the pipeline goroutine; only the
// atomic counters (and the depth gauge) are read from elsewhere.
type Buffer struct {
	poster   Poster
	url      string
	interval time.Duration
	mode     Mode

	pending  []state.Snapshot
	lastSent time.Time

	depth           atomic.Int64
	postedBatches   atomic.Int64
	postedSnapshots atomic.Int64
	postErrors      atomic.Int64

	// now is swapped out by tests to control interval gating.
	now func() time.Time
}

// NewBuffer wires a buffer to its poster and target URL.
func NewBuffer(poster Poster, url string, interval time.Duration, mode Mode) *Buffer {
	return &Buffer{
		poster:   poster,
		url:      url,
		interval: interval,
		mode:     mode,
		now:      time.Now,
	}
}

// Add enqueues snap per the mode's retention policy.
func (b *Buffer) Add(snap state.Snapshot) {
	if b.mode == ModeLatest {
		b.pending = b.pending[:0]
	}
	b.pending = append(b.pending, snap)
	b.depth.Store(int64(len(b.pending)))
}

// Len reports the number of buffered snapshots. Safe from any goroutine.
func (b *Buffer) Len() int { return int(b.depth.Load()) }

// Stats returns the delivery counters. Safe from any goroutine.
func (b *Buffer) Stats() Stats {
	return Stats{
		PostedBatches:   b.postedBatches.Load(),
		PostedSnapshots: b.postedSnapshots.Load(),
		PostErrors:      b.postErrors.Load(),
	}
}

// Flush delivers buffered snapshots if a send is due: forced, never sent
// before, or interval elapsed since the last successful send. An empty
// buffer is a no-op even when due. Delivery blocks the caller for the
// duration of the attempt, retries included.
func (b *Buffer) Flush(force bool) {
	if len(b.pending) == 0 {
		return
	}
	now := b.now()
	due := force || b.lastSent.IsZero() || now.Sub(b.lastSent) >= b.interval
	if !due {
		return
	}

	switch b.mode {
	case ModeBatch:
		payload := make([]state.Snapshot, len(b.pending))
		copy(payload, b.pending)
		if err := b.poster.Post(b.url, payload); err != nil {
			// Keep the buffer; it is retried (and grows) next interval.
			b.postErrors.Add(1)
			slog.Warn("failed to post snapshot batch",
				"url", b.url, "count", len(payload), "error", err)
			return
		}
		b.postedBatches.Add(1)
		b.postedSnapshots.Add(int64(len(payload)))
		b.pending = b.pending[:0]
		b.lastSent = now

	default: // one snapshot per interval
		item := b.pending[0]
		b.pending = b.pending[1:]
		if err := b.poster.Post(b.url, item); err != nil {
			b.postErrors.Add(1)
			slog.Warn("failed to post snapshot",
				"url", b.url, "mode", b.mode.String(), "error", err)
			if b.mode == ModeFIFO {
				// Head of the queue again next interval; order preserved.
				b.pending = append([]state.Snapshot{item}, b.pending...)
			}
			// ModeLatest: the slot stays empty until a newer snapshot
			// arrives.
			b.depth.Store(int64(len(b.pending)))
			return
		}
		b.postedBatches.Add(1)
		b.postedSnapshots.Add(1)
		b.lastSent = now
	}
	b.depth.Store(int64(len(b.pending)))
}
