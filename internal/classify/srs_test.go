package classify

import "testing"

func TestConvFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"42", 42},
		{"3.5", 3.5},
		{"1.4k", 1400},
		{"2K", 2000},
		{"2M", 2e6},
		{"1.5m", 1.5e6},
		{"50%", 50},
		{"n/a", 0},
		{"", 0},
		{"junk", 0},
	}
	for _, tt := range tests {
		if got := convFloat(tt.in); got != tt.want {
			t.Errorf("convFloat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSRSClassifyRow(t *testing.T) {
	c := NewSRS()
	ev := c.Classify("   1    4601   15    1   27   5.2k   102    3    2%   400 |  21.5   28   1.4M   95    5    5%   1200")
	if ev.Kind != KindTableReport {
		t.Fatalf("kind = %v, want table", ev.Kind)
	}
	if ev.RNTI != 4601 {
		t.Errorf("RNTI = %d, want 4601", ev.RNTI)
	}
	tr := ev.Table
	if tr == nil {
		t.Fatal("Table is nil")
	}
	if tr.PCI != 1 {
		t.Errorf("PCI = %d, want 1", tr.PCI)
	}
	if tr.DLCQI != 15 || tr.DLRI != 1 || tr.DLMCS != 27 {
		t.Errorf("DL cqi/ri/mcs = %d/%d/%d, want 15/1/27", tr.DLCQI, tr.DLRI, tr.DLMCS)
	}
	if tr.DLBitrate != 5200 {
		t.Errorf("DLBitrate = %d, want 5200", tr.DLBitrate)
	}
	if tr.DLPacketsOK != 102 || tr.DLPacketsNOK != 3 {
		t.Errorf("DL ok/nok = %d/%d, want 102/3", tr.DLPacketsOK, tr.DLPacketsNOK)
	}
	if tr.DLDropRate != 2 {
		t.Errorf("DLDropRate = %v, want 2", tr.DLDropRate)
	}
	if tr.ULPuschSINR != 21.5 {
		t.Errorf("ULPuschSINR = %v, want 21.5", tr.ULPuschSINR)
	}
	if tr.ULBitrate != 1400000 {
		t.Errorf("ULBitrate = %d, want 1400000", tr.ULBitrate)
	}
	if tr.ULBSR != 1200 {
		t.Errorf("ULBSR = %d, want 1200", tr.ULBSR)
	}
}

func TestSRSClassifySkipsHeaderRows(t *testing.T) {
	c := NewSRS()
	for _, line := range []string{
		"pci rnti  cqi  ri  mcs  brate   ok  nok  (%)   dl_bs | pusch  mcs  brate   ok  nok  (%)    bsr",
		"--------------------------------------------------------",
		"",
		"not a table row at all",
	} {
		if ev := c.Classify(line); ev.Kind != KindNone {
			t.Errorf("Classify(%q).Kind = %v, want none", line, ev.Kind)
		}
	}
}
