// Package sink provides the two local append-only outputs for emitted
// snapshots: line-delimited JSON and a flattened CSV table. Both flush
// every write immediately; buffering a crashed run's last snapshots away
// is worse than the syscall cost at this event rate.
package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/CrashxZ/AF25/internal/state"
)

// ---------------------------------------------------------------------------
// NDJSON sink
// ---------------------------------------------------------------------------

// JSONLines writes one compact JSON object per snapshot. It is the
// primary output: write failures are returned to the caller and treated
// as fatal by the pipeline.
type JSONLines struct {
	f      *os.File
	stdout bool
}

// NewJSONLines opens the NDJSON sink. A path of "-" or "" selects
// stdout; anything else is opened in append mode, creating parent
// directories as needed.
func NewJSONLines(path string) (*JSONLines, error) {
	if path == "" || path == "-" {
		return &JSONLines{stdout: true}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open NDJSON sink: %w", err)
	}
	return &JSONLines{f: f}, nil
}

// Write appends snap as one line and flushes it.
func (s *JSONLines) Write(snap state.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data = append(data, '\n')
	if s.stdout {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("write NDJSON sink: %w", err)
		}
		return nil
	}
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("write NDJSON sink: %w", err)
	}
	return nil
}

// Close releases the underlying file; a stdout sink is a no-op.
func (s *JSONLines) Close() error {
	if s.stdout || s.f == nil {
		return nil
	}
	return s.f.Close()
}

// ---------------------------------------------------------------------------
// CSV sink
// ---------------------------------------------------------------------------

// csvHeader is the fixed column order: identity first, then downlink,
// then uplink, matching the NDJSON field layout flattened with dl_/ul_
// prefixes.
var csvHeader = []string{
	"timestamp", "source", "pci", "rnti",
	"dl_cqi", "dl_ri", "dl_mcs", "dl_bitrate", "dl_packets_ok", "dl_packets_nok", "dl_drop_rate", "dl_buffer_status",
	"ul_pusch_sinr", "ul_rsrp", "ul_ri", "ul_mcs", "ul_bitrate", "ul_packets_ok", "ul_packets_nok", "ul_drop_rate", "ul_bsr", "ul_timing_advance", "ul_phr",
}

// CSV writes one row per UE per snapshot. It is a secondary, diagnostic
// output; callers may tolerate its write errors.
type CSV struct {
	f *os.File
	w *csv.Writer
}

// NewCSV opens the CSV sink in append mode and writes the header row if
// the file is new or empty.
func NewCSV(path string) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create CSV dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open CSV sink: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat CSV sink: %w", err)
	}
	s := &CSV{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush CSV header: %w", err)
		}
	}
	return s, nil
}

// Write appends one flattened row per UE in snap and flushes.
func (s *CSV) Write(snap state.Snapshot) error {
	for _, ue := range snap.UEs {
		row := []string{
			strconv.FormatInt(snap.Timestamp, 10),
			snap.Source,
			strconv.Itoa(ue.PCI),
			strconv.Itoa(ue.RNTI),
			strconv.Itoa(ue.Downlink.CQI),
			strconv.Itoa(ue.Downlink.RI),
			strconv.Itoa(ue.Downlink.MCS),
			strconv.FormatInt(ue.Downlink.Bitrate, 10),
			strconv.Itoa(ue.Downlink.PacketsOK),
			strconv.Itoa(ue.Downlink.PacketsNOK),
			formatFloat(ue.Downlink.DropRate),
			strconv.FormatInt(ue.Downlink.BufferStatus, 10),
			formatFloat(ue.Uplink.PuschSINR),
			formatFloat(ue.Uplink.RSRP),
			strconv.Itoa(ue.Uplink.RI),
			strconv.Itoa(ue.Uplink.MCS),
			strconv.FormatInt(ue.Uplink.Bitrate, 10),
			strconv.Itoa(ue.Uplink.PacketsOK),
			strconv.Itoa(ue.Uplink.PacketsNOK),
			formatFloat(ue.Uplink.DropRate),
			strconv.FormatInt(ue.Uplink.BSR, 10),
			strconv.FormatInt(ue.Uplink.TimingAdvance, 10),
			formatFloat(ue.Uplink.PHR),
		}
		if err := s.w.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush CSV sink: %w", err)
	}
	return nil
}

// Close flushes pending rows and releases the file.
func (s *CSV) Close() error {
	s.w.Flush()
	return s.f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
