package state

import "time"

// ---------------------------------------------------------------------------
// Snapshot — the immutable, normalized emission record
// ---------------------------------------------------------------------------

// Snapshot is a point-in-time record of aggregated UE state. It is the
// unit of sink output and of HTTP delivery; fields never unset after
// construction.
type Snapshot struct {
	// Timestamp is epoch milliseconds at emission.
	Timestamp int64 `json:"timestamp"`
	// Source tags the producing base station (e.g. "OAI", "srsRAN").
	Source string `json:"source"`
	// UEs holds one record per device covered by this emission.
	UEs []UERecord `json:"ues"`
}

// UERecord is one device's normalized state inside a Snapshot.
type UERecord struct {
	PCI      int            `json:"pci"`
	RNTI     int            `json:"rnti"`
	Downlink DownlinkRecord `json:"downlink"`
	Uplink   UplinkRecord   `json:"uplink"`
}

// DownlinkRecord carries the network-to-UE metrics.
type DownlinkRecord struct {
	CQI          int     `json:"cqi"`
	RI           int     `json:"ri"`
	MCS          int     `json:"mcs"`
	Bitrate      int64   `json:"bitrate"`
	PacketsOK    int     `json:"packets_ok"`
	PacketsNOK   int     `json:"packets_nok"`
	DropRate     float64 `json:"drop_rate"`
	BufferStatus int64   `json:"buffer_status"`
}

// UplinkRecord carries the UE-to-network metrics.
type UplinkRecord struct {
	PuschSINR     float64 `json:"pusch_sinr"`
	RSRP          float64 `json:"rsrp"`
	RI            int     `json:"ri"`
	MCS           int     `json:"mcs"`
	Bitrate       int64   `json:"bitrate"`
	PacketsOK     int     `json:"packets_ok"`
	PacketsNOK    int     `json:"packets_nok"`
	DropRate      float64 `json:"drop_rate"`
	BSR           int64   `json:"bsr"`
	TimingAdvance int64   `json:"timing_advance"`
	PHR           float64 `json:"phr"`
}

// BuildSnapshot copies ue's current field values into a normalized
// Snapshot, substituting zero for anything not yet observed. It is a
// pure function: repeated calls with unchanged input give equal output
// (except for the caller-supplied timestamp).
func BuildSnapshot(ue *UE, source string, now time.Time) Snapshot {
	return Snapshot{
		Timestamp: now.UnixMilli(),
		Source:    source,
		UEs: []UERecord{{
			PCI:  ue.PCI,
			RNTI: ue.RNTI,
			Downlink: DownlinkRecord{
				CQI:          orZeroInt(ue.DL.CQI),
				RI:           orZeroInt(ue.DL.RI),
				MCS:          orZeroInt(ue.DL.MCS),
				Bitrate:      int64(ue.DL.Bitrate),
				PacketsOK:    ue.DL.PacketsOK,
				PacketsNOK:   ue.DL.PacketsNOK,
				DropRate:     ue.DL.DropRate,
				BufferStatus: ue.DL.BufferStatus,
			},
			Uplink: UplinkRecord{
				PuschSINR:     orZeroFloat(ue.UL.SNR),
				RSRP:          orZeroFloat(ue.RSRP),
				RI:            orZeroInt(ue.UL.RI),
				MCS:           orZeroInt(ue.UL.MCS),
				Bitrate:       int64(ue.UL.Bitrate),
				PacketsOK:     ue.UL.PacketsOK,
				PacketsNOK:    ue.UL.PacketsNOK,
				DropRate:      ue.UL.DropRate,
				BSR:           ue.UL.BSR,
				TimingAdvance: ue.UL.TimingAdvance,
				PHR:           orZeroFloat(ue.PHR),
			},
		}},
	}
}

func orZeroInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func orZeroFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
