package generator

import (
	"fmt"
	"strings"

	"github.com/telhawk-systems/pktwatch/internal/model"
)

// Pattern renders one kind of capture line.
type Pattern struct {
	Name        string
	Description string
	// Attack patterns are drawn with the configured attack ratio.
	Attack bool
	render func(g *Generator) Event
}

var webServices = []string{"http", "https"}

var remoteAdminServices = []string{"ssh", "telnet", "rdp"}

var scanTargets = []string{"ssh", "telnet", "http", "https", "smtp", "rdp", "mysql", "445", "8080", "3306"}

// Patterns lists every line shape the generator can emit.
var Patterns = []Pattern{
	{
		Name:        "web",
		Description: "established HTTP(S) data segment",
		render: func(g *Generator) Event {
			n := g.f.Number(40, 1400)
			return g.packet(g.client(), g.server(g.pick(webServices)),
				fmt.Sprintf("Flags [P.], seq %d:%d, ack %d, win 502, length %d", 1, n+1, 1, n),
				model.VerdictNormal)
		},
	},
	{
		Name:        "ack",
		Description: "bare acknowledgement",
		render: func(g *Generator) Event {
			return g.packet(g.client(), g.server(g.pick(webServices)),
				fmt.Sprintf("Flags [.], ack %d, win 502, length 0", g.f.Number(1, 90000)),
				model.VerdictNormal)
		},
	},
	{
		Name:        "syn-ack",
		Description: "server accepting a connection",
		render: func(g *Generator) Event {
			return g.packet(g.server(g.pick(webServices)), g.client(),
				fmt.Sprintf("Flags [S.], seq %d, ack %d, win 65160, length 0", g.f.Number(1, 1<<30), g.f.Number(1, 1<<30)),
				model.VerdictNormal)
		},
	},
	{
		Name:        "dns-query",
		Description: "ordinary DNS lookup",
		render: func(g *Generator) Event {
			name := strings.ToLower(g.f.DomainName())
			return g.packet(g.client(), g.server("domain"),
				fmt.Sprintf("%d+ %s? %s. (%d)", g.f.Number(1, 65535), g.pick([]string{"A", "AAAA", "MX"}), name, len(name)+18),
				model.VerdictDNSQuery)
		},
	},
	{
		Name:        "ntp",
		Description: "NTP client poll",
		render: func(g *Generator) Event {
			return g.packet(g.client(), g.server("ntp"), "NTPv4, Client, length 48", model.VerdictNormal)
		},
	},
	{
		Name:        "arp",
		Description: "non-IP noise that never parses",
		render: func(g *Generator) Event {
			return Event{
				Line: fmt.Sprintf("%s ARP, Request who-has %s tell %s, length 28", g.stamp(), g.f.IPv4Address(), g.f.IPv4Address()),
			}
		},
	},
	{
		Name:        "syn-scan",
		Description: "half-open SYN probe",
		Attack:      true,
		render: func(g *Generator) Event {
			return g.packet(g.client(), g.server(g.pick(scanTargets)),
				fmt.Sprintf("Flags [S], seq %d, win 1024, options [mss 1460], length 0", g.f.Number(1, 1<<30)),
				model.VerdictSYNScan)
		},
	},
	{
		Name:        "rst",
		Description: "connection refused with a reset",
		Attack:      true,
		render: func(g *Generator) Event {
			return g.packet(g.server(g.pick(webServices)), g.client(),
				fmt.Sprintf("Flags [R.], seq 0, ack %d, win 0, length 0", g.f.Number(1, 1<<30)),
				model.VerdictRejected)
		},
	},
	{
		Name:        "remote-admin",
		Description: "traffic to a remote administration service",
		Attack:      true,
		render: func(g *Generator) Event {
			svc := g.pick(remoteAdminServices)
			n := g.f.Number(20, 600)
			return g.packet(g.client(), g.server(svc),
				fmt.Sprintf("Flags [P.], seq 1:%d, ack 1, win 501, length %d", n+1, n),
				model.RemoteAdmin(svc))
		},
	},
	{
		Name:        "zone-transfer",
		Description: "AXFR or IXFR request",
		Attack:      true,
		render: func(g *Generator) Event {
			zone := strings.ToLower(g.f.DomainName())
			return g.packet(g.client(), g.server("domain"),
				fmt.Sprintf("%d+ %s? %s. (%d)", g.f.Number(1, 65535), g.pick([]string{"AXFR", "IXFR"}), zone, len(zone)+18),
				model.VerdictZoneTransfer)
		},
	},
	{
		Name:        "nxdomain",
		Description: "resolver answering NXDomain",
		Attack:      true,
		render: func(g *Generator) Event {
			return g.packet(g.server("domain"), g.client(),
				fmt.Sprintf("%d NXDomain 0/1/0 (%d)", g.f.Number(1, 65535), g.f.Number(60, 140)),
				model.VerdictNXDomain)
		},
	},
	{
		Name:        "dns-tunnel",
		Description: "oversized query carrying encoded data",
		Attack:      true,
		render: func(g *Generator) Event {
			labels := make([]string, 4)
			for i := range labels {
				labels[i] = strings.ToLower(g.f.LetterN(60))
			}
			name := strings.Join(labels, ".") + ".t." + strings.ToLower(g.f.DomainName())
			return g.packet(g.client(), g.server("domain"),
				fmt.Sprintf("%d+ TXT? %s. (%d)", g.f.Number(1, 65535), name, len(name)+18),
				model.VerdictDNSTunnel)
		},
	},
}

// PatternNames returns the names of Patterns in order.
func PatternNames() []string {
	names := make([]string, len(Patterns))
	for i, p := range Patterns {
		names[i] = p.Name
	}
	return names
}

func lookupPattern(name string) (Pattern, bool) {
	for _, p := range Patterns {
		if p.Name == name {
			return p, true
		}
	}
	return Pattern{}, false
}
