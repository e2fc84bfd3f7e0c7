package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// srsRAN UE-metrics table classifier
// ---------------------------------------------------------------------------

// TableReport is one srsRAN metrics table row: a complete per-UE report
// with both directions in a single line.
type TableReport struct {
	PCI int

	DLCQI          int
	DLRI           int
	DLMCS          int
	DLBitrate      int64
	DLPacketsOK    int
	DLPacketsNOK   int
	DLDropRate     float64
	DLBufferStatus int64

	ULPuschSINR  float64
	ULMCS        int
	ULBitrate    int64
	ULPacketsOK  int
	ULPacketsNOK int
	ULDropRate   float64
	ULBSR        int64
}

// One data row: pci rnti | cqi ri mcs brate ok nok dl% dl_bs | pusch mcs
// brate ok nok ul% bsr. Free-form cells ("n/a", "1.4k", "50%") are \S+.
var reSRSRow = regexp.MustCompile(`^\s*(\d+)\s+(\d+)\s+(\S+)\s+(\d+)\s+(\d+)\s+(\S+)\s+(\d+)\s+(\d+)\s+(\S+)\s+(\d+)\s*\|\s*(\S+)\s+(\d+)\s+(\S+)\s+(\d+)\s+(\d+)\s+(\S+)\s+(\d+)`)

// SRS classifies srsRAN gNB metrics-table rows. Header and separator
// rows are reported as KindNone; every data row is a complete report
// and an emission trigger.
type SRS struct{}

// NewSRS returns the srsRAN table classifier.
func NewSRS() *SRS { return &SRS{} }

// Classify parses one table row.
func (c *SRS) Classify(line string) Event {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "pci") || strings.HasPrefix(s, "-") {
		return Event{Kind: KindNone}
	}
	m := reSRSRow.FindStringSubmatch(line)
	if m == nil {
		return Event{Kind: KindNone}
	}

	rnti, err := ParseRNTI(m[2])
	if err != nil {
		return Event{Kind: KindNone}
	}
	t := &TableReport{}
	t.PCI = int(convInt(m[1]))
	t.DLCQI = int(convInt(m[3]))
	t.DLRI = int(convInt(m[4]))
	t.DLMCS = int(convInt(m[5]))
	t.DLBitrate = convInt(m[6])
	t.DLPacketsOK = int(convInt(m[7]))
	t.DLPacketsNOK = int(convInt(m[8]))
	t.DLDropRate = convFloat(m[9])
	t.DLBufferStatus = convInt(m[10])
	t.ULPuschSINR = convFloat(m[11])
	t.ULMCS = int(convInt(m[12]))
	t.ULBitrate = convInt(m[13])
	t.ULPacketsOK = int(convInt(m[14]))
	t.ULPacketsNOK = int(convInt(m[15]))
	t.ULDropRate = convFloat(m[16])
	t.ULBSR = convInt(m[17])

	return Event{Kind: KindTableReport, RNTI: rnti, Table: t}
}

// convFloat decodes an srsRAN table cell: "1.4k" scales by 1000, "2M" by
// a million, "50%" drops the percent sign, "n/a" reads as zero.
func convFloat(s string) float64 {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case lower == "n/a" || lower == "":
		return 0
	case strings.HasSuffix(lower, "k"):
		v, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0
		}
		return v * 1e3
	case strings.HasSuffix(lower, "m"):
		v, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0
		}
		return v * 1e6
	case strings.HasSuffix(s, "%"):
		v, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0
		}
		return v
	default:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}
}

func convInt(s string) int64 {
	return int64(convFloat(s))
}
