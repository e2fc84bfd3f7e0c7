package state

import (
	"testing"
	"time"

	"github.com/CrashxZ/AF25/internal/classify"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func TestGetCreatesLazilyAndIsIdempotent(t *testing.T) {
	s := NewStore()
	a := s.Get(100)
	b := s.Get(100)
	if a != b {
		t.Error("Get returned distinct aggregates for the same RNTI")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if a.RNTI != 100 {
		t.Errorf("RNTI = %d, want 100", a.RNTI)
	}
}

func TestApplyPartialUpdateLeavesOtherFields(t *testing.T) {
	s := NewStore()
	now := time.Now()

	s.Apply(classify.Event{
		Kind: classify.KindHeader,
		RNTI: 7,
		PHR:  floatp(10),
		RSRP: floatp(-80),
	}, now)
	ue := s.Apply(classify.Event{
		Kind: classify.KindChannelQuality,
		RNTI: 7,
		CQI:  intp(12),
		RI:   intp(2),
	}, now)

	if ue.PHR == nil || *ue.PHR != 10 {
		t.Errorf("PHR = %v, want 10 (untouched by CQI event)", ue.PHR)
	}
	if ue.RSRP == nil || *ue.RSRP != -80 {
		t.Errorf("RSRP = %v, want -80", ue.RSRP)
	}
	if ue.DL.CQI == nil || *ue.DL.CQI != 12 {
		t.Errorf("CQI = %v, want 12", ue.DL.CQI)
	}

	// A header without RSRP leaves the previous RSRP in place.
	ue = s.Apply(classify.Event{
		Kind: classify.KindHeader,
		RNTI: 7,
		PHR:  floatp(11),
	}, now)
	if ue.RSRP == nil || *ue.RSRP != -80 {
		t.Errorf("RSRP = %v, want -80 after partial header", ue.RSRP)
	}
	if *ue.PHR != 11 {
		t.Errorf("PHR = %v, want 11", *ue.PHR)
	}
}

func TestPacketStats(t *testing.T) {
	tests := []struct {
		rounds, errors int
		ok, nok        int
		drop           float64
	}{
		{100, 5, 95, 5, 5.0},
		{0, 3, 0, 3, 0},   // no scheduled units: drop rate exactly 0
		{10, 12, 0, 12, 120}, // errors above scheduled clamp ok at 0
		{50, 0, 50, 0, 0},
	}
	for _, tt := range tests {
		ok, nok, drop := packetStats(tt.rounds, tt.errors)
		if ok != tt.ok || nok != tt.nok || drop != tt.drop {
			t.Errorf("packetStats(%d, %d) = %d/%d/%v, want %d/%d/%v",
				tt.rounds, tt.errors, ok, nok, drop, tt.ok, tt.nok, tt.drop)
		}
	}
}

func TestApplyScheduleDerivesFreshStats(t *testing.T) {
	s := NewStore()
	now := time.Now()

	ue := s.Apply(classify.Event{
		Kind: classify.KindDownlinkSchedule, RNTI: 1,
		Rounds: 100, Errors: 5, MCS: intp(10),
	}, now)
	if ue.DL.PacketsOK != 95 || ue.DL.PacketsNOK != 5 || ue.DL.DropRate != 5.0 {
		t.Errorf("derived = %d/%d/%v, want 95/5/5", ue.DL.PacketsOK, ue.DL.PacketsNOK, ue.DL.DropRate)
	}

	// The next report replaces, never accumulates.
	ue = s.Apply(classify.Event{
		Kind: classify.KindDownlinkSchedule, RNTI: 1,
		Rounds: 10, Errors: 1, MCS: intp(9),
	}, now)
	if ue.DL.PacketsOK != 9 || ue.DL.PacketsNOK != 1 || ue.DL.DropRate != 10.0 {
		t.Errorf("derived = %d/%d/%v, want 9/1/10", ue.DL.PacketsOK, ue.DL.PacketsNOK, ue.DL.DropRate)
	}
}

func TestBitrateFromByteDeltas(t *testing.T) {
	s := NewStore()
	t0 := time.UnixMilli(1_000_000)

	ue := s.Apply(classify.Event{Kind: classify.KindUplinkBytes, RNTI: 2, TotalBytes: 1000}, t0)
	if ue.UL.Bitrate != 0 {
		t.Errorf("bitrate after first observation = %v, want 0", ue.UL.Bitrate)
	}

	// 1000 bytes in 500ms = 16000 bit/s.
	ue = s.Apply(classify.Event{Kind: classify.KindUplinkBytes, RNTI: 2, TotalBytes: 2000}, t0.Add(500*time.Millisecond))
	if ue.UL.Bitrate != 16000 {
		t.Errorf("bitrate = %v, want 16000", ue.UL.Bitrate)
	}
	if ue.UL.TotalBytes != 2000 {
		t.Errorf("TotalBytes = %d, want 2000", ue.UL.TotalBytes)
	}

	// Counter regression clamps the delta to zero.
	ue = s.Apply(classify.Event{Kind: classify.KindUplinkBytes, RNTI: 2, TotalBytes: 100}, t0.Add(time.Second))
	if ue.UL.Bitrate != 0 {
		t.Errorf("bitrate after counter reset = %v, want 0", ue.UL.Bitrate)
	}
}

func TestBuildSnapshotDefaults(t *testing.T) {
	s := NewStore()
	ue := s.Get(42)
	now := time.UnixMilli(1_700_000_000_000)

	snap := BuildSnapshot(ue, "OAI", now)
	if snap.Timestamp != 1_700_000_000_000 {
		t.Errorf("Timestamp = %d", snap.Timestamp)
	}
	if snap.Source != "OAI" {
		t.Errorf("Source = %q", snap.Source)
	}
	if len(snap.UEs) != 1 {
		t.Fatalf("len(UEs) = %d, want 1", len(snap.UEs))
	}
	rec := snap.UEs[0]
	if rec.RNTI != 42 || rec.PCI != 0 {
		t.Errorf("identity = %d/%d, want 42/0", rec.RNTI, rec.PCI)
	}
	if rec.Downlink.CQI != 0 || rec.Uplink.PHR != 0 || rec.Uplink.RSRP != 0 {
		t.Error("unset fields should normalize to zero")
	}
}

func TestBuildSnapshotIsStable(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Apply(classify.Event{Kind: classify.KindHeader, RNTI: 9, PHR: floatp(30), RSRP: floatp(-85)}, now)
	s.Apply(classify.Event{Kind: classify.KindChannelQuality, RNTI: 9, CQI: intp(11), RI: intp(1)}, now)
	ue := s.Get(9)

	ts := time.UnixMilli(12345)
	a := BuildSnapshot(ue, "OAI", ts)
	b := BuildSnapshot(ue, "OAI", ts)
	if a.UEs[0] != b.UEs[0] || a.Timestamp != b.Timestamp {
		t.Error("BuildSnapshot is not stable for unchanged input")
	}
	if a.UEs[0].Uplink.PHR != 30 || a.UEs[0].Uplink.RSRP != -85 {
		t.Error("header fields missing from snapshot uplink record")
	}
}

func TestApplyTableReport(t *testing.T) {
	s := NewStore()
	ue := s.Apply(classify.Event{
		Kind: classify.KindTableReport,
		RNTI: 4601,
		Table: &classify.TableReport{
			PCI: 1, DLCQI: 15, DLRI: 1, DLMCS: 27, DLBitrate: 5200,
			DLPacketsOK: 102, DLPacketsNOK: 3, DLDropRate: 2, DLBufferStatus: 400,
			ULPuschSINR: 21.5, ULMCS: 28, ULBitrate: 1400000,
			ULPacketsOK: 95, ULPacketsNOK: 5, ULDropRate: 5, ULBSR: 1200,
		},
	}, time.Now())

	if ue.PCI != 1 {
		t.Errorf("PCI = %d, want 1", ue.PCI)
	}
	if ue.DL.CQI == nil || *ue.DL.CQI != 15 {
		t.Errorf("DL CQI = %v, want 15", ue.DL.CQI)
	}
	if ue.UL.SNR == nil || *ue.UL.SNR != 21.5 {
		t.Errorf("UL SNR = %v, want 21.5", ue.UL.SNR)
	}
	if ue.DL.Bitrate != 5200 || ue.UL.Bitrate != 1400000 {
		t.Errorf("bitrates = %v/%v", ue.DL.Bitrate, ue.UL.Bitrate)
	}
}
