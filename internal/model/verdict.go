package model

import "strings"

// Verdict is the single classification label assigned to a record.
type Verdict string

const (
	VerdictSYNScan      Verdict = "SYN Scan/Flood"
	VerdictRejected     Verdict = "Rejected (RST)"
	VerdictZoneTransfer Verdict = "DNS Zone Transfer"
	VerdictDNSTunnel    Verdict = "DNS Tunneling/Exfiltration"
	VerdictNXDomain     Verdict = "DNS NXDomain (Suspect)"
	VerdictDNSQuery     Verdict = "DNS Query"
	VerdictNormal       Verdict = "Normal"

	remoteAdminPrefix = "Remote Admin ("
)

// RemoteAdmin returns the verdict for traffic to a sensitive administration service.
func RemoteAdmin(service string) Verdict {
	return Verdict(remoteAdminPrefix + service + ")")
}

// IsRemoteAdmin reports whether v was built by RemoteAdmin.
func (v Verdict) IsRemoteAdmin() bool {
	return strings.HasPrefix(string(v), remoteAdminPrefix) && strings.HasSuffix(string(v), ")")
}

// IsThreat is false for benign verdicts, which are kept out of the threat table.
func (v Verdict) IsThreat() bool {
	return v != VerdictNormal && v != VerdictDNSQuery && v != ""
}

func (v Verdict) String() string {
	return string(v)
}

// Slug returns a lowercase token suitable for metric labels and message subjects.
func (v Verdict) Slug() string {
	switch v {
	case VerdictSYNScan:
		return "syn_scan"
	case VerdictRejected:
		return "rst_reject"
	case VerdictZoneTransfer:
		return "dns_zone_transfer"
	case VerdictDNSTunnel:
		return "dns_tunneling"
	case VerdictNXDomain:
		return "dns_nxdomain"
	case VerdictDNSQuery:
		return "dns_query"
	case VerdictNormal:
		return "normal"
	}
	if v.IsRemoteAdmin() {
		return "remote_admin"
	}
	return "unknown"
}
