// Package stats accumulates the frequency tables built over one analysis run.
package stats

import (
	"strings"

	"github.com/telhawk-systems/pktwatch/internal/model"
)

// NonTCP is the flag bucket for records that carried no TCP flags.
const NonTCP FlagPattern = "non-TCP"

// FlagPattern keys the flags table: the raw flag string or NonTCP.
type FlagPattern string

// SourceAddress keys the source table.
type SourceAddress string

// ServiceName keys the service table.
type ServiceName string

// ThreatKey groups threat volume per source network, target and verdict.
type ThreatKey struct {
	SourceNetwork string        `json:"source_network" yaml:"source_network"`
	DestAddress   string        `json:"dest" yaml:"dest"`
	Verdict       model.Verdict `json:"verdict" yaml:"verdict"`
}

// Statistics is the four tables of one run.
type Statistics struct {
	Flags    *Table[FlagPattern]
	Sources  *Table[SourceAddress]
	Services *Table[ServiceName]
	Threats  *Table[ThreatKey]
}

// Aggregator owns a Statistics value and grows it monotonically. It is not
// safe for concurrent use; the pipeline feeds it from a single goroutine.
type Aggregator struct {
	stats *Statistics
}

// NewAggregator returns an aggregator with empty tables.
func NewAggregator() *Aggregator {
	return &Aggregator{stats: &Statistics{
		Flags:    NewTable[FlagPattern](),
		Sources:  NewTable[SourceAddress](),
		Services: NewTable[ServiceName](),
		Threats:  NewTable[ThreatKey](),
	}}
}

// Add counts one record into every table it belongs to.
func (a *Aggregator) Add(rec model.ClassifiedRecord) {
	flags := FlagPattern(rec.Flags)
	if flags == "" {
		flags = NonTCP
	}
	a.stats.Flags.Inc(flags)
	a.stats.Sources.Inc(SourceAddress(rec.SourceAddress))
	if rec.Service != "" {
		a.stats.Services.Inc(ServiceName(rec.Service))
	}
	if rec.Verdict.IsThreat() {
		a.stats.Threats.Inc(ThreatKey{
			SourceNetwork: MaskNetwork(rec.SourceAddress),
			DestAddress:   rec.DestAddress,
			Verdict:       rec.Verdict,
		})
	}
}

// Statistics returns the tables. Callers must not write to them.
func (a *Aggregator) Statistics() *Statistics {
	return a.stats
}

// MaskNetwork replaces the last dotted segment of a numeric address with "*"
// so hosts of one subnet group together. Hostnames are returned unchanged.
func MaskNetwork(addr string) string {
	if addr == "" || addr[0] < '0' || addr[0] > '9' {
		return addr
	}
	if i := strings.LastIndexByte(addr, '.'); i >= 0 {
		return addr[:i] + ".*"
	}
	return addr + ".*"
}
