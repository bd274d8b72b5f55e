package parser

import "testing"

func TestDescribeFlags(t *testing.T) {
	tests := map[string]string{
		"S":  "SYN",
		"S.": "SYNACK",
		".":  "ACK",
		"R":  "RST",
		"R.": "ACKRST",
		"P.": "ACK",
		"F":  "Other",
		"":   "Other",
	}

	for in, want := range tests {
		if got := DescribeFlags(in); got != want {
			t.Errorf("DescribeFlags(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarkers(t *testing.T) {
	if !HasSYN("S.") || HasSYN("P.") {
		t.Error("HasSYN mismatch")
	}
	if !HasACK("S.") || HasACK("S") {
		t.Error("HasACK mismatch")
	}
	if !HasRST("R") || HasRST("F.") {
		t.Error("HasRST mismatch")
	}
}
