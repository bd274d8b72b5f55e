// Package classifier assigns a verdict to each packet from an ordered rule table.
//
// Rules are evaluated top to bottom and the first match wins. TCP-level signals
// (flag anomalies, sensitive services) come first; DNS payload inspection only
// runs once they have not produced a verdict. Anything left over is Normal.
package classifier

import (
	"strings"
	"unicode/utf8"

	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/parser"
)

const (
	DefaultDNSLengthCutoff = 200
	dnsServiceName         = "domain"
	dnsPort                = "53"
)

// DefaultSensitiveServices are the remote-administration services flagged on sight.
var DefaultSensitiveServices = []string{"ssh", "telnet", "rdp"}

// Input is everything a rule may look at.
type Input struct {
	Flags   string
	Service string
	Payload string
}

// Rule is one (predicate, verdict) row of the table.
type Rule struct {
	Name        string
	Description string
	Match       func(in Input) (model.Verdict, bool)
}

// Options tunes the thresholds. Zero values fall back to the defaults.
type Options struct {
	SensitiveServices []string
	DNSLengthCutoff   int
}

// Classifier is stateless between calls and safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// New builds the rule table for opts.
func New(opts Options) *Classifier {
	return &Classifier{rules: buildRules(opts)}
}

// Default returns a classifier using the built-in thresholds.
func Default() *Classifier {
	return New(Options{})
}

// Classify returns the verdict of the first matching rule.
func (c *Classifier) Classify(in Input) model.Verdict {
	for _, r := range c.rules {
		if v, ok := r.Match(in); ok {
			return v
		}
	}
	return model.VerdictNormal
}

// Explain is Classify plus the name of the rule that fired.
func (c *Classifier) Explain(in Input) (model.Verdict, string) {
	for _, r := range c.rules {
		if v, ok := r.Match(in); ok {
			return v, r.Name
		}
	}
	return model.VerdictNormal, "normal"
}

// Rules returns a copy of the table in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// IsDNS reports whether service identifies DNS traffic.
func IsDNS(service string) bool {
	return service == dnsServiceName || strings.Contains(service, dnsPort)
}

func buildRules(opts Options) []Rule {
	cutoff := opts.DNSLengthCutoff
	if cutoff <= 0 {
		cutoff = DefaultDNSLengthCutoff
	}
	services := opts.SensitiveServices
	if len(services) == 0 {
		services = DefaultSensitiveServices
	}
	sensitive := make(map[string]struct{}, len(services))
	for _, s := range services {
		sensitive[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	return []Rule{
		{
			Name:        "syn-scan",
			Description: "SYN without ACK: half-open connection attempt",
			Match: func(in Input) (model.Verdict, bool) {
				return model.VerdictSYNScan, in.Flags != "" && parser.HasSYN(in.Flags) && !parser.HasACK(in.Flags)
			},
		},
		{
			Name:        "rst-reject",
			Description: "RST: connection refused or torn down",
			Match: func(in Input) (model.Verdict, bool) {
				return model.VerdictRejected, parser.HasRST(in.Flags)
			},
		},
		{
			Name:        "remote-admin",
			Description: "traffic to a sensitive remote-administration service",
			Match: func(in Input) (model.Verdict, bool) {
				if _, ok := sensitive[in.Service]; !ok || in.Service == "" {
					return "", false
				}
				return model.RemoteAdmin(in.Service), true
			},
		},
		{
			Name:        "dns-zone-transfer",
			Description: "DNS AXFR/IXFR request: full zone exfiltration",
			Match: func(in Input) (model.Verdict, bool) {
				return model.VerdictZoneTransfer, IsDNS(in.Service) &&
					(strings.Contains(in.Payload, "AXFR") || strings.Contains(in.Payload, "IXFR"))
			},
		},
		{
			Name:        "dns-tunneling",
			Description: "abnormally long DNS payload: hidden-channel encoding",
			Match: func(in Input) (model.Verdict, bool) {
				return model.VerdictDNSTunnel, IsDNS(in.Service) && utf8.RuneCountInString(in.Payload) > cutoff
			},
		},
		{
			Name:        "dns-nxdomain",
			Description: "NXDOMAIN answer: possible DGA beaconing",
			Match: func(in Input) (model.Verdict, bool) {
				return model.VerdictNXDomain, IsDNS(in.Service) && strings.Contains(strings.ToUpper(in.Payload), "NXDOMAIN")
			},
		},
		{
			Name:        "dns-query",
			Description: "ordinary DNS traffic",
			Match: func(in Input) (model.Verdict, bool) {
				return model.VerdictDNSQuery, IsDNS(in.Service)
			},
		},
	}
}
