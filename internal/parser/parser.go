// Package parser matches tcpdump-style capture lines and extracts TCP flags.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/telhawk-systems/pktwatch/internal/model"
)

// Mode selects how much of the payload a line must carry to match.
type Mode int

const (
	// ModeGeneral keeps any payload, so DNS, ICMP and other non-TCP lines survive.
	ModeGeneral Mode = iota
	// ModeFlagsOnly only matches lines whose payload opens with "Flags [...]".
	ModeFlagsOnly
)

var ErrUnknownMode = errors.New("unknown parse mode")

var (
	generalLine   = regexp.MustCompile(`(\S+) IP ([\w.-]+) > ([\w.-]+): (.*)`)
	flagsOnlyLine = regexp.MustCompile(`(\S+) IP ([\w.-]+) > ([\w.-]+): (Flags \[(.*?)\].*)`)
	flagsField    = regexp.MustCompile(`Flags \[(.*?)\]`)
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "general":
		return ModeGeneral, nil
	case "flags-only", "flags_only", "flags":
		return ModeFlagsOnly, nil
	default:
		return ModeGeneral, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) String() string {
	if m == ModeFlagsOnly {
		return "flags-only"
	}
	return "general"
}

// Parser is safe for concurrent use; it holds no per-line state.
type Parser struct {
	mode Mode
	re   *regexp.Regexp
}

// New creates a parser for the given mode.
func New(mode Mode) *Parser {
	re := generalLine
	if mode == ModeFlagsOnly {
		re = flagsOnlyLine
	}
	return &Parser{mode: mode, re: re}
}

// Mode returns the mode the parser was built with.
func (p *Parser) Mode() Mode {
	return p.mode
}

// Parse matches one line. ok is false when the line is not a packet line;
// callers skip it without treating it as an error.
func (p *Parser) Parse(line string) (ev *model.ParsedEvent, ok bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	ev = &model.ParsedEvent{
		Timestamp: m[1],
		SourceRaw: m[2],
		DestRaw:   m[3],
		Payload:   m[4],
	}
	if p.mode == ModeFlagsOnly {
		ev.Flags = strings.TrimSpace(m[5])
	}
	return ev, true
}

// Flags returns the TCP flag letters of ev: the captured group in flags-only
// mode, a search of the payload otherwise.
func (p *Parser) Flags(ev *model.ParsedEvent) string {
	if ev == nil {
		return ""
	}
	if p.mode == ModeFlagsOnly {
		return ev.Flags
	}
	return ExtractFlags(ev.Payload)
}

// ExtractFlags returns the trimmed contents of the first "Flags [...]" in
// payload, or "" when there is none.
func ExtractFlags(payload string) string {
	m := flagsField.FindStringSubmatch(payload)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
