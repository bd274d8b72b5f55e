package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/pktwatch/internal/model"
)

func TestClassify(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		in   Input
		want model.Verdict
	}{
		{"syn without ack", Input{Flags: "S", Service: "http"}, model.VerdictSYNScan},
		{"syn beats sensitive service", Input{Flags: "S", Service: "ssh"}, model.VerdictSYNScan},
		{"syn-ack is not a scan", Input{Flags: "S.", Service: "http"}, model.VerdictNormal},
		{"rst", Input{Flags: "R", Service: "http"}, model.VerdictRejected},
		{"rst-ack", Input{Flags: "R.", Service: "ssh"}, model.VerdictRejected},
		{"ssh push", Input{Flags: "P.", Service: "ssh"}, model.RemoteAdmin("ssh")},
		{"telnet without flags", Input{Service: "telnet"}, model.RemoteAdmin("telnet")},
		{"rdp", Input{Flags: ".", Service: "rdp"}, model.RemoteAdmin("rdp")},
		{"zone transfer", Input{Service: "domain", Payload: "1234+ AXFR? corp.local. (32)"}, model.VerdictZoneTransfer},
		{"incremental zone transfer", Input{Service: "domain", Payload: "1234+ IXFR? corp.local. (32)"}, model.VerdictZoneTransfer},
		{"tunneling", Input{Service: "domain", Payload: strings.Repeat("x", 201)}, model.VerdictDNSTunnel},
		{"exactly at cutoff is not tunneling", Input{Service: "domain", Payload: strings.Repeat("x", 200)}, model.VerdictDNSQuery},
		{"nxdomain upper", Input{Service: "domain", Payload: "4242 NXDOMAIN 0/1/0 (97)"}, model.VerdictNXDomain},
		{"nxdomain mixed case", Input{Service: "domain", Payload: "4242 NXDomain 0/1/0 (97)"}, model.VerdictNXDomain},
		{"axfr beats length", Input{Service: "domain", Payload: "AXFR " + strings.Repeat("x", 300)}, model.VerdictZoneTransfer},
		{"length beats nxdomain", Input{Service: "domain", Payload: "NXDomain " + strings.Repeat("x", 300)}, model.VerdictDNSTunnel},
		{"plain dns", Input{Service: "domain", Payload: "4242+ A? example.com. (29)"}, model.VerdictDNSQuery},
		{"service containing 53", Input{Service: "dns53"}, model.VerdictDNSQuery},
		{"empty dns payload", Input{Service: "domain"}, model.VerdictDNSQuery},
		{"no signal", Input{Service: "http", Payload: "HTTP: GET / HTTP/1.1"}, model.VerdictNormal},
		{"nothing at all", Input{}, model.VerdictNormal},
		{"axfr outside dns is normal", Input{Service: "http", Payload: "AXFR"}, model.VerdictNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.in))
		})
	}
}

func TestClassify_Options(t *testing.T) {
	c := New(Options{SensitiveServices: []string{"vnc", " SSH "}, DNSLengthCutoff: 10})

	assert.Equal(t, model.RemoteAdmin("vnc"), c.Classify(Input{Service: "vnc"}))
	assert.Equal(t, model.RemoteAdmin("ssh"), c.Classify(Input{Service: "ssh"}))
	assert.Equal(t, model.VerdictNormal, c.Classify(Input{Service: "telnet"}))
	assert.Equal(t, model.VerdictDNSTunnel, c.Classify(Input{Service: "domain", Payload: "01234567890"}))
}

func TestExplain(t *testing.T) {
	c := Default()

	v, rule := c.Explain(Input{Flags: "S", Service: "ssh"})
	assert.Equal(t, model.VerdictSYNScan, v)
	assert.Equal(t, "syn-scan", rule)

	v, rule = c.Explain(Input{Service: "http"})
	assert.Equal(t, model.VerdictNormal, v)
	assert.Equal(t, "normal", rule)
}

func TestRules_Order(t *testing.T) {
	var names []string
	for _, r := range Default().Rules() {
		names = append(names, r.Name)
		assert.NotEmpty(t, r.Description)
	}
	assert.Equal(t, []string{
		"syn-scan",
		"rst-reject",
		"remote-admin",
		"dns-zone-transfer",
		"dns-tunneling",
		"dns-nxdomain",
		"dns-query",
	}, names)
}

func TestRules_ReturnsCopy(t *testing.T) {
	c := Default()
	rules := c.Rules()
	rules[0] = Rule{Name: "tampered"}
	assert.Equal(t, "syn-scan", c.Rules()[0].Name)
}

func TestIsDNS(t *testing.T) {
	assert.True(t, IsDNS("domain"))
	assert.True(t, IsDNS("x53"))
	assert.False(t, IsDNS("domains"))
	assert.False(t, IsDNS(""))
}
