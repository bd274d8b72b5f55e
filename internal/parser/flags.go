package parser

import "strings"

// TCP flag markers as printed by tcpdump.
const (
	MarkerSYN = "S"
	MarkerACK = "."
	MarkerRST = "R"
)

// HasSYN reports whether flags contain the SYN marker.
func HasSYN(flags string) bool { return strings.Contains(flags, MarkerSYN) }

// HasACK reports whether flags contain the ACK marker.
func HasACK(flags string) bool { return strings.Contains(flags, MarkerACK) }

// HasRST reports whether flags contain the RST marker.
func HasRST(flags string) bool { return strings.Contains(flags, MarkerRST) }

// DescribeFlags names the notable markers in a flag string, e.g. "SYNACK".
// Strings without any of them describe as "Other".
func DescribeFlags(flags string) string {
	var b strings.Builder
	if HasSYN(flags) {
		b.WriteString("SYN")
	}
	if HasACK(flags) {
		b.WriteString("ACK")
	}
	if HasRST(flags) {
		b.WriteString("RST")
	}
	if b.Len() == 0 {
		return "Other"
	}
	return b.String()
}
