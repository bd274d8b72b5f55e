// Package model holds the types that flow through the analysis pipeline.
package model

// ParsedEvent is the raw field split of one capture line.
type ParsedEvent struct {
	Timestamp string
	SourceRaw string
	DestRaw   string
	Payload   string

	// Flags is captured directly in flags-only mode. General mode leaves it
	// empty; see parser.Parser.Flags.
	Flags string
}

// Endpoint is an address with an optional named service.
type Endpoint struct {
	Address string `json:"address"`
	Service string `json:"service,omitempty"`
}

// ClassifiedRecord is the unit handed to exporters. Treat it as immutable.
type ClassifiedRecord struct {
	Timestamp     string  `json:"timestamp" yaml:"timestamp"`
	SourceAddress string  `json:"source" yaml:"source"`
	DestAddress   string  `json:"dest" yaml:"dest"`
	Service       string  `json:"service" yaml:"service"`
	DisplayInfo   string  `json:"info" yaml:"info"`
	Verdict       Verdict `json:"verdict" yaml:"verdict"`

	// Flags is kept for aggregation and is not part of the exported shape.
	Flags string `json:"-" yaml:"-"`
}
