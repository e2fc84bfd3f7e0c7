// Package pipeline drives the collector: it tails the gNB log, feeds
// each line through the classifier, merges events into the per-UE state
// store, emits normalized snapshots to the sinks on trigger events, and
// schedules delivery-buffer flushes.
//
// The whole pipeline runs on one goroutine; all I/O, including delivery
// retries, happens inline. Only the atomic diagnostics counters are read
// from other goroutines (the status server).
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CrashxZ/AF25/internal/classify"
	"github.com/CrashxZ/AF25/internal/deliver"
	"github.com/CrashxZ/AF25/internal/sink"
	"github.com/CrashxZ/AF25/internal/state"
)

// idleSleep is how long the follow-mode loop waits when no new log data
// is available before polling again.
const idleSleep = 100 * time.Millisecond

// Options wires a Pipeline to its collaborators.
type Options struct {
	// Input is the log file to read.
	Input string
	// Follow keeps reading appended content; false processes the
	// available content once and stops.
	Follow bool
	// Source tags every emitted snapshot.
	Source string
	// Classifier matches the input's log format.
	Classifier classify.Classifier
	// JSONSink is the primary output; its write errors are fatal.
	JSONSink *sink.JSONLines
	// CSVSink is optional; nil disables tabular output.
	CSVSink *sink.CSV
	// Buffer is optional; nil disables HTTP delivery.
	Buffer *deliver.Buffer
}

// Pipeline is one collector run over one input file.
type Pipeline struct {
	opts  Options
	runID string
	store *state.Store
	now   func() time.Time

	startedAt time.Time

	// Diagnostics counters, readable from any goroutine.
	lines     atomic.Int64
	header    atomic.Int64
	cqi       atomic.Int64
	dlsch     atomic.Int64
	ulsch     atomic.Int64
	dlBytes   atomic.Int64
	ulBytes   atomic.Int64
	marker    atomic.Int64
	table     atomic.Int64
	unmatched atomic.Int64
	snapshots atomic.Int64
	csvErrors atomic.Int64
	ues       atomic.Int64
}

// New creates a pipeline with a fresh run ID. startedAt is fixed here
// so Status() never races with Run: the status server may be serving
// before Run is called.
func New(opts Options) *Pipeline {
	return &Pipeline{
		opts:      opts,
		runID:     uuid.NewString(),
		store:     state.NewStore(),
		now:       time.Now,
		startedAt: time.Now(),
	}
}

// RunID returns the identifier generated for this run.
func (p *Pipeline) RunID() string { return p.runID }

// Run opens the input and processes it until EOF (run-once), context
// cancellation, or a fatal sink error. On exit it performs one forced
// delivery flush and closes the sinks best-effort.
func (p *Pipeline) Run(ctx context.Context) error {
	f, err := os.Open(p.opts.Input)
	if err != nil {
		return fmt.Errorf("open input %s: %w", p.opts.Input, err)
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		slog.Info("reading gNB log",
			"file", p.opts.Input,
			"follow", p.opts.Follow,
			"size_bytes", info.Size(),
			"run_id", p.runID,
		)
	}

	err = p.readLoop(ctx, f)
	p.shutdown()
	return err
}

// readLoop is the single cooperative loop: read a line, process it,
// consider a flush; when idle, sleep briefly and consider a flush.
func (p *Pipeline) readLoop(ctx context.Context, f *os.File) error {
	reader := bufio.NewReader(f)
	var partial []byte

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			if len(partial) > 0 {
				chunk = append(partial, chunk...)
				partial = nil
			}
			if chunk[len(chunk)-1] != '\n' {
				// Line only partially written; wait for the rest.
				partial = chunk
			} else {
				if perr := p.processLine(string(chunk)); perr != nil {
					return perr
				}
				p.flushCheck()
			}
		}

		if err != nil {
			if err != io.EOF {
				return fmt.Errorf("read input %s: %w", p.opts.Input, err)
			}
			if !p.opts.Follow {
				// A trailing line without newline still counts.
				if len(partial) > 0 {
					if perr := p.processLine(string(partial)); perr != nil {
						return perr
					}
				}
				return nil
			}
			p.flushCheck()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idleSleep):
			}
		}
	}
}

// processLine classifies one line and applies its effects. Only a
// primary-sink write failure is returned as an error.
func (p *Pipeline) processLine(line string) error {
	p.lines.Add(1)
	s := strings.TrimSpace(line)
	if s == "" {
		return nil
	}
	// Bracketed status lines (e.g. "[NR_MAC] Frame.Slot ...") carry no
	// per-UE fields; they are skipped but still reach the flush check in
	// the read loop.
	if strings.HasPrefix(s, "[") {
		return nil
	}

	ev := p.opts.Classifier.Classify(s)
	switch ev.Kind {
	case classify.KindNone:
		p.unmatched.Add(1)
		return nil
	case classify.KindHeader:
		p.header.Add(1)
	case classify.KindChannelQuality:
		p.cqi.Add(1)
	case classify.KindDownlinkSchedule:
		p.dlsch.Add(1)
	case classify.KindUplinkSchedule:
		p.ulsch.Add(1)
	case classify.KindDownlinkBytes:
		p.dlBytes.Add(1)
	case classify.KindUplinkBytes:
		p.ulBytes.Add(1)
	case classify.KindMarker:
		p.marker.Add(1)
	case classify.KindTableReport:
		p.table.Add(1)
	}

	now := p.now()
	ue := p.store.Apply(ev, now)
	p.ues.Store(int64(p.store.Len()))

	if emits(ev.Kind) {
		return p.emit(ue, now, ev.Kind)
	}
	return nil
}

// emits reports whether kind closes a reporting cycle. The uplink byte
// counter is the last line of an OAI stats block; the LCID marker is the
// fallback for logs without byte counters; an srsRAN table row is a
// complete report by itself.
func emits(kind classify.Kind) bool {
	switch kind {
	case classify.KindUplinkBytes, classify.KindMarker, classify.KindTableReport:
		return true
	}
	return false
}

// emit builds the snapshot, writes it to both sinks synchronously, and
// hands it to the delivery buffer.
func (p *Pipeline) emit(ue *state.UE, now time.Time, reason classify.Kind) error {
	snap := state.BuildSnapshot(ue, p.opts.Source, now)
	p.snapshots.Add(1)

	if err := p.opts.JSONSink.Write(snap); err != nil {
		return fmt.Errorf("primary sink: %w", err)
	}
	if p.opts.CSVSink != nil {
		if err := p.opts.CSVSink.Write(snap); err != nil {
			p.csvErrors.Add(1)
			slog.Warn("CSV sink write failed", "error", err)
		}
	}
	if p.opts.Buffer != nil {
		p.opts.Buffer.Add(snap)
	}

	slog.Debug("snapshot emitted",
		"rnti", fmt.Sprintf("%#x", ue.RNTI),
		"reason", reason.String(),
	)
	return nil
}

func (p *Pipeline) flushCheck() {
	if p.opts.Buffer != nil {
		p.opts.Buffer.Flush(false)
	}
}

// shutdown runs the final forced flush, closes the sinks, and logs the
// run summary.
func (p *Pipeline) shutdown() {
	if p.opts.Buffer != nil {
		p.opts.Buffer.Flush(true)
	}
	if err := p.opts.JSONSink.Close(); err != nil {
		slog.Warn("closing NDJSON sink", "error", err)
	}
	if p.opts.CSVSink != nil {
		if err := p.opts.CSVSink.Close(); err != nil {
			slog.Warn("closing CSV sink", "error", err)
		}
	}

	attrs := []any{
		"lines", p.lines.Load(),
		"headers", p.header.Load(),
		"cqi", p.cqi.Load(),
		"dlsch", p.dlsch.Load(),
		"ulsch", p.ulsch.Load(),
		"dl_bytes", p.dlBytes.Load(),
		"ul_bytes", p.ulBytes.Load(),
		"markers", p.marker.Load(),
		"unmatched", p.unmatched.Load(),
		"snapshots", p.snapshots.Load(),
	}
	if p.opts.Buffer != nil {
		st := p.opts.Buffer.Stats()
		attrs = append(attrs,
			"posted_batches", st.PostedBatches,
			"posted_snapshots", st.PostedSnapshots,
			"post_errors", st.PostErrors,
		)
	}
	slog.Info("pipeline stopped", attrs...)
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status is a JSON-friendly view of the pipeline's counters for the
// status API.
type Status struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	Input     string    `json:"input"`
	StartedAt time.Time `json:"started_at"`

	Lines     int64 `json:"lines"`
	Header    int64 `json:"header"`
	CQI       int64 `json:"cqi"`
	DLSCH     int64 `json:"dlsch"`
	ULSCH     int64 `json:"ulsch"`
	DLBytes   int64 `json:"dl_bytes"`
	ULBytes   int64 `json:"ul_bytes"`
	Markers   int64 `json:"markers"`
	TableRows int64 `json:"table_rows"`
	Unmatched int64 `json:"unmatched"`
	Snapshots int64 `json:"snapshots"`
	CSVErrors int64 `json:"csv_errors"`
	UEs       int64 `json:"ues"`

	Delivery    *deliver.Stats `json:"delivery,omitempty"`
	BufferDepth int            `json:"buffer_depth"`
}

// Status snapshots the current counters. Safe from any goroutine.
func (p *Pipeline) Status() Status {
	st := Status{
		RunID:     p.runID,
		Source:    p.opts.Source,
		Input:     p.opts.Input,
		StartedAt: p.startedAt,
		Lines:     p.lines.Load(),
		Header:    p.header.Load(),
		CQI:       p.cqi.Load(),
		DLSCH:     p.dlsch.Load(),
		ULSCH:     p.ulsch.Load(),
		DLBytes:   p.dlBytes.Load(),
		ULBytes:   p.ulBytes.Load(),
		Markers:   p.marker.Load(),
		TableRows: p.table.Load(),
		Unmatched: p.unmatched.Load(),
		Snapshots: p.snapshots.Load(),
		CSVErrors: p.csvErrors.Load(),
		UEs:       p.ues.Load(),
	}
	if p.opts.Buffer != nil {
		stats := p.opts.Buffer.Stats()
		st.Delivery = &stats
		st.BufferDepth = p.opts.Buffer.Len()
	}
	return st
}
