package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CrashxZ/AF25/internal/state"
)

func testSnapshot() state.Snapshot {
	return state.Snapshot{
		Timestamp: 1700000000000,
		Source:    "OAI",
		UEs: []state.UERecord{{
			PCI:  1,
			RNTI: 100,
			Downlink: state.DownlinkRecord{
				CQI: 10, RI: 2, MCS: 9, Bitrate: 4000000,
				PacketsOK: 95, PacketsNOK: 5, DropRate: 5.0, BufferStatus: 400,
			},
			Uplink: state.UplinkRecord{
				PuschSINR: 21.5, RSRP: -80, RI: 1, MCS: 6, Bitrate: 16000,
				PacketsOK: 50, PacketsNOK: 0, DropRate: 0, BSR: 1200,
				TimingAdvance: 2, PHR: 30,
			},
		}},
	}
}

func TestJSONLinesWritesCompactLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ndjson")
	s, err := NewJSONLines(path)
	if err != nil {
		t.Fatalf("NewJSONLines: %v", err)
	}
	if err := s.Write(testSnapshot()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(testSnapshot()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for _, line := range lines {
		if strings.Contains(line, " ") {
			t.Errorf("line is not compact: %q", line)
		}
		var snap state.Snapshot
		if err := json.Unmarshal([]byte(line), &snap); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		if snap.Timestamp != 1700000000000 || snap.UEs[0].RNTI != 100 {
			t.Errorf("roundtrip mismatch: %+v", snap)
		}
	}
}

func TestCSVHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	s, err := NewCSV(path)
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}
	if err := s.Write(testSnapshot()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening an existing, non-empty file must not duplicate the header.
	s, err = NewCSV(path)
	if err != nil {
		t.Fatalf("NewCSV reopen: %v", err)
	}
	if err := s.Write(testSnapshot()); err != nil {
		t.Fatalf("Write after reopen: %v", err)
	}
	s.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,source,pci,rnti,dl_cqi") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if strings.HasPrefix(lines[1], "timestamp") || strings.HasPrefix(lines[2], "timestamp") {
		t.Error("header row duplicated")
	}
	wantRow := "1700000000000,OAI,1,100,10,2,9,4000000,95,5,5,400,21.5,-80,1,6,16000,50,0,0,1200,2,30"
	if lines[1] != wantRow {
		t.Errorf("row = %q, want %q", lines[1], wantRow)
	}
}

func TestJSONLinesStdout(t *testing.T) {
	s, err := NewJSONLines("-")
	if err != nil {
		t.Fatalf("NewJSONLines: %v", err)
	}
	if !s.stdout {
		t.Error("path \"-\" should select stdout")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on stdout sink: %v", err)
	}
}

// Both sink destinations report write failures with the same context.
func TestJSONLinesStdoutWriteErrorIsWrapped(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	w.Close()
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	s, err := NewJSONLines("-")
	if err != nil {
		t.Fatalf("NewJSONLines: %v", err)
	}
	werr := s.Write(testSnapshot())
	if werr == nil {
		t.Fatal("Write to a closed stdout should fail")
	}
	if !strings.Contains(werr.Error(), "write NDJSON sink") {
		t.Errorf("error %q lacks sink context", werr)
	}
}
