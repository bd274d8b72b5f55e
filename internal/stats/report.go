package stats

import (
	"github.com/telhawk-systems/pktwatch/internal/parser"
)

// FlagRow is a row of the flags view.
type FlagRow struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Description string `json:"description" yaml:"description"`
	Count       int64  `json:"count" yaml:"count"`
}

// CountRow is a row of the source and service views.
type CountRow struct {
	Key   string `json:"key" yaml:"key"`
	Count int64  `json:"count" yaml:"count"`
}

// ThreatRow is a row of the threat view.
type ThreatRow struct {
	ThreatKey `yaml:",inline"`
	Count     int64 `json:"count" yaml:"count"`
}

// Report is the top-N view of every table, shaped for serialization.
type Report struct {
	Flags    []FlagRow   `json:"flags" yaml:"flags"`
	Sources  []CountRow  `json:"sources" yaml:"sources"`
	Services []CountRow  `json:"services" yaml:"services"`
	Threats  []ThreatRow `json:"threats" yaml:"threats"`
}

// Report builds the top-n view of s. n <= 0 includes every entry.
func (s *Statistics) Report(n int) Report {
	r := Report{
		Flags:    []FlagRow{},
		Sources:  []CountRow{},
		Services: []CountRow{},
		Threats:  []ThreatRow{},
	}
	for _, e := range s.Flags.Top(n) {
		desc := parser.DescribeFlags(string(e.Key))
		if e.Key == NonTCP {
			desc = "Other"
		}
		r.Flags = append(r.Flags, FlagRow{Pattern: string(e.Key), Description: desc, Count: e.Count})
	}
	for _, e := range s.Sources.Top(n) {
		r.Sources = append(r.Sources, CountRow{Key: string(e.Key), Count: e.Count})
	}
	for _, e := range s.Services.Top(n) {
		r.Services = append(r.Services, CountRow{Key: string(e.Key), Count: e.Count})
	}
	for _, e := range s.Threats.Top(n) {
		r.Threats = append(r.Threats, ThreatRow{ThreatKey: e.Key, Count: e.Count})
	}
	return r
}
