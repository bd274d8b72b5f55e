package pcapsource

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// TimestampLayout is tcpdump's default time column.
const TimestampLayout = "15:04:05.000000"

var portNames = map[uint16]string{
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "domain",
	80:   "http",
	110:  "pop3",
	123:  "ntp",
	143:  "imap",
	443:  "https",
	3389: "rdp",
}

var qtypeNames = map[layers.DNSType]string{
	layers.DNSTypeA:     "A",
	layers.DNSTypeNS:    "NS",
	layers.DNSTypeCNAME: "CNAME",
	layers.DNSTypeSOA:   "SOA",
	layers.DNSTypePTR:   "PTR",
	layers.DNSTypeMX:    "MX",
	layers.DNSTypeTXT:   "TXT",
	layers.DNSTypeAAAA:  "AAAA",
	251:                 "IXFR",
	252:                 "AXFR",
	255:                 "ANY",
}

var rcodeNames = map[layers.DNSResponseCode]string{
	layers.DNSResponseCodeFormErr:  "FormErr",
	layers.DNSResponseCodeServFail: "ServFail",
	layers.DNSResponseCodeNXDomain: "NXDomain",
	layers.DNSResponseCodeNotImp:   "NotImp",
	layers.DNSResponseCodeRefused:  "Refused",
}

// PortName is the service name tcpdump prints for a port, or the number.
func PortName(port uint16) string {
	if name, ok := portNames[port]; ok {
		return name
	}
	return strconv.Itoa(int(port))
}

// FormatPacket renders pkt as one tcpdump line. ok is false for packets with
// no renderable network layer.
func FormatPacket(ts time.Time, pkt gopacket.Packet) (line string, ok bool) {
	stamp := ts.UTC().Format(TimestampLayout)

	if arp, isARP := pkt.Layer(layers.LayerTypeARP).(*layers.ARP); isARP {
		return stamp + " " + formatARP(arp), true
	}

	var family, src, dst string
	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		family, src, dst = "IP", ip.SrcIP.String(), ip.DstIP.String()
	case *layers.IPv6:
		family, src, dst = "IP6", ip.SrcIP.String(), ip.DstIP.String()
	default:
		return "", false
	}

	switch l4 := pkt.TransportLayer().(type) {
	case *layers.TCP:
		return fmt.Sprintf("%s %s %s.%s > %s.%s: %s", stamp, family,
			src, PortName(uint16(l4.SrcPort)), dst, PortName(uint16(l4.DstPort)), formatTCP(l4)), true
	case *layers.UDP:
		rest := fmt.Sprintf("UDP, length %d", len(l4.Payload))
		if dns, isDNS := pkt.Layer(layers.LayerTypeDNS).(*layers.DNS); isDNS {
			rest = formatDNS(dns, len(l4.Payload))
		}
		return fmt.Sprintf("%s %s %s.%s > %s.%s: %s", stamp, family,
			src, PortName(uint16(l4.SrcPort)), dst, PortName(uint16(l4.DstPort)), rest), true
	}

	if icmp, isICMP := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4); isICMP {
		return fmt.Sprintf("%s %s %s > %s: ICMP %s, length %d", stamp, family, src, dst,
			strings.ToLower(icmp.TypeCode.String()), len(icmp.Payload)), true
	}
	return fmt.Sprintf("%s %s %s > %s: ip-proto-%d", stamp, family, src, dst, protocolOf(pkt)), true
}

// TCPFlags renders flags in tcpdump order with "." standing for ACK.
func TCPFlags(tcp *layers.TCP) string {
	var b strings.Builder
	for _, f := range []struct {
		set  bool
		mark byte
	}{
		{tcp.FIN, 'F'}, {tcp.SYN, 'S'}, {tcp.RST, 'R'}, {tcp.PSH, 'P'},
		{tcp.URG, 'U'}, {tcp.ECE, 'E'}, {tcp.CWR, 'W'}, {tcp.ACK, '.'},
	} {
		if f.set {
			b.WriteByte(f.mark)
		}
	}
	if b.Len() == 0 {
		return "none"
	}
	return b.String()
}

func formatTCP(tcp *layers.TCP) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Flags [%s], seq %d", TCPFlags(tcp), tcp.Seq)
	if tcp.ACK {
		fmt.Fprintf(&b, ", ack %d", tcp.Ack)
	}
	fmt.Fprintf(&b, ", win %d, length %d", tcp.Window, len(tcp.Payload))
	return b.String()
}

func formatDNS(dns *layers.DNS, length int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(dns.ID)))
	if !dns.QR {
		if dns.RD {
			b.WriteByte('+')
		}
		for _, q := range dns.Questions {
			fmt.Fprintf(&b, " %s? %s.", qtypeName(q.Type), q.Name)
		}
		fmt.Fprintf(&b, " (%d)", length)
		return b.String()
	}

	if name, ok := rcodeNames[dns.ResponseCode]; ok {
		b.WriteString(" " + name)
	}
	fmt.Fprintf(&b, " %d/%d/%d", dns.ANCount, dns.NSCount, dns.ARCount)
	for _, a := range dns.Answers {
		if a.IP != nil {
			fmt.Fprintf(&b, " %s %s", qtypeName(a.Type), a.IP)
		}
	}
	fmt.Fprintf(&b, " (%d)", length)
	return b.String()
}

func qtypeName(t layers.DNSType) string {
	if name, ok := qtypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE%d", uint16(t))
}

func formatARP(arp *layers.ARP) string {
	src := net.IP(arp.SourceProtAddress).String()
	dst := net.IP(arp.DstProtAddress).String()
	if arp.Operation == layers.ARPReply {
		return fmt.Sprintf("ARP, Reply %s is-at %s, length %d", src, net.HardwareAddr(arp.SourceHwAddress), 28)
	}
	return fmt.Sprintf("ARP, Request who-has %s tell %s, length %d", dst, src, 28)
}

func protocolOf(pkt gopacket.Packet) int {
	if ip, ok := pkt.NetworkLayer().(*layers.IPv4); ok {
		return int(ip.Protocol)
	}
	if ip, ok := pkt.NetworkLayer().(*layers.IPv6); ok {
		return int(ip.NextHeader)
	}
	return 0
}
