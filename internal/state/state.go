// Package state keeps the per-UE aggregate built from classified log
// events, and builds the normalized snapshots that get emitted.
//
// Every aggregate field is updated only by the event kinds that carry
// it; an event never resets fields it does not mention. Optional fields
// are pointers until first observed so snapshots can substitute zero
// defaults.
package state

import (
	"time"

	"github.com/CrashxZ/AF25/internal/classify"
)

// Downlink is the network-to-UE half of the aggregate.
type Downlink struct {
	CQI *int
	RI  *int
	MCS *int

	// Rounds and Errors are the latest scheduled/failed counters from a
	// schedule report; the packet stats below are derived from them.
	Rounds     int
	Errors     int
	PacketsOK  int
	PacketsNOK int
	DropRate   float64

	TotalBytes   int64
	Bitrate      float64
	BufferStatus int64

	lastBytes  *int64
	lastBytesT time.Time
}

// Uplink is the UE-to-network half of the aggregate.
type Uplink struct {
	RI  *int
	MCS *int
	SNR *float64

	Rounds     int
	Errors     int
	PacketsOK  int
	PacketsNOK int
	DropRate   float64

	TotalBytes    int64
	Bitrate       float64
	BSR           int64
	TimingAdvance int64

	lastBytes  *int64
	lastBytesT time.Time
}

// UE is the mutable aggregate for one radio terminal, keyed by RNTI.
type UE struct {
	RNTI int
	PCI  int

	PHR     *float64
	PCMax   *float64
	RSRP    *float64
	SSBSINR *float64

	DL Downlink
	UL Uplink
}

// Store maps RNTI to aggregate. Entries are created lazily on first
// reference and live for the process lifetime. The store is owned by
// the single pipeline goroutine and needs no locking.
type Store struct {
	ues map[int]*UE
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{ues: make(map[int]*UE)}
}

// Get returns the aggregate for rnti, creating a defaulted one on first
// reference. It never fails and is idempotent.
func (s *Store) Get(rnti int) *UE {
	ue, ok := s.ues[rnti]
	if !ok {
		ue = &UE{RNTI: rnti}
		s.ues[rnti] = ue
	}
	return ue
}

// Len reports the number of distinct UEs seen so far.
func (s *Store) Len() int { return len(s.ues) }

// Apply merges ev into the matching aggregate and returns it. Fields the
// event does not carry keep their prior value.
func (s *Store) Apply(ev classify.Event, now time.Time) *UE {
	ue := s.Get(ev.RNTI)

	switch ev.Kind {
	case classify.KindHeader:
		if ev.PHR != nil {
			ue.PHR = ev.PHR
		}
		if ev.PCMax != nil {
			ue.PCMax = ev.PCMax
		}
		if ev.RSRP != nil {
			ue.RSRP = ev.RSRP
		}
		if ev.SSBSINR != nil {
			ue.SSBSINR = ev.SSBSINR
		}

	case classify.KindChannelQuality:
		if ev.CQI != nil {
			ue.DL.CQI = ev.CQI
		}
		if ev.RI != nil {
			ue.DL.RI = ev.RI
		}

	case classify.KindDownlinkSchedule:
		ue.DL.Rounds = ev.Rounds
		ue.DL.Errors = ev.Errors
		if ev.MCS != nil {
			ue.DL.MCS = ev.MCS
		}
		ue.DL.PacketsOK, ue.DL.PacketsNOK, ue.DL.DropRate = packetStats(ev.Rounds, ev.Errors)

	case classify.KindUplinkSchedule:
		ue.UL.Rounds = ev.Rounds
		ue.UL.Errors = ev.Errors
		if ev.MCS != nil {
			ue.UL.MCS = ev.MCS
		}
		if ev.SNR != nil {
			ue.UL.SNR = ev.SNR
		}
		ue.UL.PacketsOK, ue.UL.PacketsNOK, ue.UL.DropRate = packetStats(ev.Rounds, ev.Errors)

	case classify.KindDownlinkBytes:
		ue.DL.TotalBytes = ev.TotalBytes
		if bps, ok := bitrate(ue.DL.lastBytes, ue.DL.lastBytesT, ev.TotalBytes, now); ok {
			ue.DL.Bitrate = bps
		}
		b := ev.TotalBytes
		ue.DL.lastBytes = &b
		ue.DL.lastBytesT = now

	case classify.KindUplinkBytes:
		ue.UL.TotalBytes = ev.TotalBytes
		if bps, ok := bitrate(ue.UL.lastBytes, ue.UL.lastBytesT, ev.TotalBytes, now); ok {
			ue.UL.Bitrate = bps
		}
		b := ev.TotalBytes
		ue.UL.lastBytes = &b
		ue.UL.lastBytesT = now

	case classify.KindMarker:
		// Reference only: ensures the UE exists so the emission that
		// follows has an aggregate to snapshot.

	case classify.KindTableReport:
		applyTable(ue, ev.Table)
	}

	return ue
}

// packetStats derives ok/nok/drop-rate fresh from the latest counters,
// discarding any prior derived value.
func packetStats(rounds, errors int) (ok, nok int, dropRate float64) {
	ok = rounds - errors
	if ok < 0 {
		ok = 0
	}
	nok = errors
	if rounds > 0 {
		dropRate = float64(errors) / float64(rounds) * 100.0
	}
	return ok, nok, dropRate
}

// bitrate computes bits per second from the byte-counter delta since the
// previous observation. The first observation and non-positive time
// deltas report no value; a counter regression clamps the delta to zero.
func bitrate(prevBytes *int64, prevT time.Time, curBytes int64, curT time.Time) (float64, bool) {
	if prevBytes == nil || prevT.IsZero() {
		return 0, false
	}
	dt := curT.Sub(prevT).Seconds()
	if dt <= 0 {
		return 0, false
	}
	delta := curBytes - *prevBytes
	if delta < 0 {
		delta = 0
	}
	return float64(delta) * 8.0 / dt, true
}

// applyTable overwrites the fields an srsRAN table row carries; a row is
// a complete report for both directions.
func applyTable(ue *UE, t *classify.TableReport) {
	if t == nil {
		return
	}
	ue.PCI = t.PCI

	ue.DL.CQI = intPtr(t.DLCQI)
	ue.DL.RI = intPtr(t.DLRI)
	ue.DL.MCS = intPtr(t.DLMCS)
	ue.DL.Bitrate = float64(t.DLBitrate)
	ue.DL.PacketsOK = t.DLPacketsOK
	ue.DL.PacketsNOK = t.DLPacketsNOK
	ue.DL.DropRate = t.DLDropRate
	ue.DL.BufferStatus = t.DLBufferStatus

	ue.UL.SNR = floatPtr(t.ULPuschSINR)
	ue.UL.MCS = intPtr(t.ULMCS)
	ue.UL.Bitrate = float64(t.ULBitrate)
	ue.UL.PacketsOK = t.ULPacketsOK
	ue.UL.PacketsNOK = t.ULPacketsNOK
	ue.UL.DropRate = t.ULDropRate
	ue.UL.BSR = t.ULBSR
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
