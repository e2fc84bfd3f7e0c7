// Package classify turns raw gNB log lines into tagged events. A
// classifier tries an ordered table of line patterns; the first
// structural match wins, which is what disambiguates the current and
// legacy flavours of the same report line.
package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the shape of a classified line.
type Kind int

const (
	// KindNone marks a line that matched no known pattern.
	KindNone Kind = iota
	// KindHeader is the per-UE header line (PH / PCMAX / RSRP).
	KindHeader
	// KindChannelQuality is the CQI/RI report.
	KindChannelQuality
	// KindDownlinkSchedule is the dlsch rounds/errors report.
	KindDownlinkSchedule
	// KindUplinkSchedule is the ulsch rounds/errors report.
	KindUplinkSchedule
	// KindDownlinkBytes is the cumulative downlink byte counter.
	KindDownlinkBytes
	// KindUplinkBytes is the cumulative uplink byte counter. It closes a
	// reporting cycle and triggers snapshot emission.
	KindUplinkBytes
	// KindMarker is the generic per-UE LCID line; it also triggers
	// emission, as a fallback for logs that never print byte counters.
	KindMarker
	// KindTableReport is one full srsRAN metrics table row.
	KindTableReport
)

var kindNames = map[Kind]string{
	KindNone:             "none",
	KindHeader:           "header",
	KindChannelQuality:   "cqi",
	KindDownlinkSchedule: "dlsch",
	KindUplinkSchedule:   "ulsch",
	KindDownlinkBytes:    "dl_bytes",
	KindUplinkBytes:      "ul_bytes",
	KindMarker:           "marker",
	KindTableReport:      "table",
}

// String returns the short diagnostic name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is the result of classifying one line. Only the fields relevant
// to Kind are populated; pointer fields stay nil when the line did not
// carry them, so the state store can apply partial updates.
type Event struct {
	Kind Kind
	RNTI int

	// Header fields.
	PHR     *float64
	PCMax   *float64
	RSRP    *float64
	SSBSINR *float64

	// Channel-quality fields.
	CQI *int
	RI  *int

	// Schedule-report fields. Rounds is the scheduled-unit count (first
	// figure of the rounds quadruple), Errors the failed count.
	Rounds int
	Errors int
	MCS    *int
	SNR    *float64

	// Byte-counter field.
	TotalBytes int64

	// srsRAN table row; nil for every other kind.
	Table *TableReport
}

// Classifier maps one raw line to an Event, or KindNone.
type Classifier interface {
	Classify(line string) Event
}

// ---------------------------------------------------------------------------
// OAI periodic-stats classifier
// ---------------------------------------------------------------------------

// The patterns below cover the current ("simple") and legacy ("old")
// flavours of the OAI periodic UE stats block. Order matters: simple
// variants come first, and the LCID marker is last because it matches
// very loosely.
var (
	reHeaderSimple = regexp.MustCompile(`(?i)UE RNTI ([0-9a-f]+)\s*(?:\(\d+\))?.*?PH (-?\d+(?:\.\d+)?) dB.*?PCMAX (-?\d+(?:\.\d+)?) dBm(?:, average RSRP (-?\d+(?:\.\d+)?)(?: \([^)]*\))?)?`)
	reHeaderOld    = regexp.MustCompile(`(?i)UE RNTI ([0-9a-f]+)\b.*?(?:in-sync|out-of-sync)\b.*?PH (-?\d+(?:\.\d+)?) dB.*?PCMAX (-?\d+(?:\.\d+)?) dBm(?:, average RSRP (-?\d+(?:\.\d+)?)(?: \([^)]*\))?)?(?:.*?average SINR (-?\d+(?:\.\d+)?))?`)
	reCQI          = regexp.MustCompile(`(?i)UE ([0-9a-f]+): CQI (\d+), RI (\d+), PMI`)
	reDLSCHSimple  = regexp.MustCompile(`(?i)UE ([0-9a-f]+): dlsch_rounds (\d+)/(?:\d+)/(?:\d+)/(?:\d+), dlsch_errors (\d+), pucch0_DTX (?:\d+), BLER (?:[0-9.]+) MCS (\d+)`)
	reDLSCHOld     = regexp.MustCompile(`(?i)UE ([0-9a-f]+): dlsch_rounds (\d+)/(?:\d+)/(?:\d+)/(?:\d+), dlsch_errors (\d+), pucch0_DTX (?:\d+), BLER (?:[0-9.]+) MCS \(\d+\) (\d+)`)
	reULSCHSimple  = regexp.MustCompile(`(?i)UE ([0-9a-f]+): ulsch_rounds (\d+)/(?:\d+)/(?:\d+)/(?:\d+), ulsch_DTX (?:\d+), ulsch_errors (\d+), BLER (?:[0-9.]+) MCS (\d+)`)
	reULSCHOld     = regexp.MustCompile(`(?i)UE ([0-9a-f]+): ulsch_rounds (\d+)/(?:\d+)/(?:\d+)/(?:\d+), ulsch_errors (\d+), ulsch_DTX (?:\d+), BLER (?:[0-9.]+) MCS \(\d+\) (\d+)(?:.*?SNR (-?\d+(?:\.\d+)?) dB)?`)
	reDLBytes      = regexp.MustCompile(`(?i)UE ([0-9a-f]+): dlsch_total_bytes (\d+)`)
	reULBytesRx    = regexp.MustCompile(`(?i)UE ([0-9a-f]+): ulsch_total_bytes_received (\d+)`)
	reLCID         = regexp.MustCompile(`(?i)UE ([0-9a-f]+): LCID \d+: `)
)

// matcher pairs a compiled pattern with an extractor building the event
// from the submatches.
type matcher struct {
	re      *regexp.Regexp
	extract func(m []string) Event
}

// OAI classifies OpenAirInterface gNB periodic-stats lines.
type OAI struct {
	matchers []matcher
}

// NewOAI builds the classifier with its fixed pattern priority.
func NewOAI() *OAI {
	return &OAI{matchers: []matcher{
		{reHeaderSimple, extractHeaderSimple},
		{reHeaderOld, extractHeaderOld},
		{reCQI, extractCQI},
		{reDLSCHSimple, extractSchedule(KindDownlinkSchedule, false)},
		{reDLSCHOld, extractSchedule(KindDownlinkSchedule, false)},
		{reULSCHSimple, extractSchedule(KindUplinkSchedule, false)},
		{reULSCHOld, extractSchedule(KindUplinkSchedule, true)},
		{reDLBytes, extractBytes(KindDownlinkBytes)},
		{reULBytesRx, extractBytes(KindUplinkBytes)},
		{reLCID, extractMarker},
	}}
}

// Classify tries each pattern in priority order and returns the first
// match, or a KindNone event.
func (c *OAI) Classify(line string) Event {
	for _, m := range c.matchers {
		if sub := m.re.FindStringSubmatch(line); sub != nil {
			return m.extract(sub)
		}
	}
	return Event{Kind: KindNone}
}

// ParseRNTI parses a textual RNTI: an optional 0x prefix is stripped,
// pure-digit text reads as decimal, anything else as hexadecimal.
func ParseRNTI(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	allDigits := s != ""
	for _, r := range s {
		if r < '0' || r > '9' {
			allDigits = false
			break
		}
	}
	if allDigits {
		v, err := strconv.ParseInt(s, 10, 64)
		return int(v), err
	}
	v, err := strconv.ParseInt(s, 16, 64)
	return int(v), err
}

func extractHeaderSimple(m []string) Event {
	ev := Event{Kind: KindHeader}
	if rnti, err := ParseRNTI(m[1]); err == nil {
		ev.RNTI = rnti
	} else {
		return Event{Kind: KindNone}
	}
	ev.PHR = parseOptFloat(m[2])
	ev.PCMax = parseOptFloat(m[3])
	ev.RSRP = parseOptFloat(m[4])
	return ev
}

func extractHeaderOld(m []string) Event {
	ev := extractHeaderSimple(m[:5])
	if ev.Kind == KindHeader {
		ev.SSBSINR = parseOptFloat(m[5])
	}
	return ev
}

func extractCQI(m []string) Event {
	ev := Event{Kind: KindChannelQuality}
	if rnti, err := ParseRNTI(m[1]); err == nil {
		ev.RNTI = rnti
	} else {
		return Event{Kind: KindNone}
	}
	ev.CQI = parseOptInt(m[2])
	ev.RI = parseOptInt(m[3])
	return ev
}

// extractSchedule covers both schedule-report directions; the legacy
// uplink flavour carries an optional trailing SNR.
func extractSchedule(kind Kind, withSNR bool) func(m []string) Event {
	return func(m []string) Event {
		ev := Event{Kind: kind}
		rnti, err := ParseRNTI(m[1])
		if err != nil {
			return Event{Kind: KindNone}
		}
		ev.RNTI = rnti
		ev.Rounds, _ = strconv.Atoi(m[2])
		ev.Errors, _ = strconv.Atoi(m[3])
		ev.MCS = parseOptInt(m[4])
		if withSNR {
			ev.SNR = parseOptFloat(m[5])
		}
		return ev
	}
}

func extractBytes(kind Kind) func(m []string) Event {
	return func(m []string) Event {
		ev := Event{Kind: kind}
		rnti, err := ParseRNTI(m[1])
		if err != nil {
			return Event{Kind: KindNone}
		}
		ev.RNTI = rnti
		ev.TotalBytes, _ = strconv.ParseInt(m[2], 10, 64)
		return ev
	}
}

func extractMarker(m []string) Event {
	rnti, err := ParseRNTI(m[1])
	if err != nil {
		return Event{Kind: KindNone}
	}
	return Event{Kind: KindMarker, RNTI: rnti}
}

// parseOptFloat returns nil when the capture is empty or malformed,
// leaving the corresponding state field untouched.
func parseOptFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseOptInt(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
