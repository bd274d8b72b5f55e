// Package generator produces synthetic tcpdump-style capture text mixing
// benign traffic with the attack shapes the classifier recognises.
package generator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/pktwatch/internal/model"
)

var ErrUnknownPattern = errors.New("unknown pattern")

// Options configures a Generator.
type Options struct {
	// Seed makes output reproducible; 0 picks a random seed.
	Seed int64
	// AttackRatio is the probability in [0,1] that a line is an attack.
	AttackRatio float64
	// Start is the capture clock of the first line.
	Start time.Time
	// Only restricts output to the named patterns.
	Only []string
}

// Event is one generated line. Packet is false for lines that should not
// parse; Expect is the verdict a packet line must classify as.
type Event struct {
	Line    string
	Pattern string
	Packet  bool
	Expect  model.Verdict
}

// Generator is not safe for concurrent use.
type Generator struct {
	f      *gofakeit.Faker
	ratio  float64
	clock  time.Time
	benign []Pattern
	attack []Pattern
}

// New builds a generator.
func New(opts Options) (*Generator, error) {
	if opts.AttackRatio < 0 || opts.AttackRatio > 1 {
		return nil, fmt.Errorf("attack ratio %v outside [0,1]", opts.AttackRatio)
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	}

	g := &Generator{
		f:     gofakeit.New(opts.Seed),
		ratio: opts.AttackRatio,
		clock: opts.Start,
	}

	selected := Patterns
	if len(opts.Only) > 0 {
		selected = nil
		for _, name := range opts.Only {
			p, ok := lookupPattern(name)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, name)
			}
			selected = append(selected, p)
		}
	}
	for _, p := range selected {
		if p.Attack {
			g.attack = append(g.attack, p)
		} else {
			g.benign = append(g.benign, p)
		}
	}
	return g, nil
}

// Next renders the next line.
func (g *Generator) Next() Event {
	pool := g.benign
	if len(g.attack) > 0 && (len(g.benign) == 0 || g.f.Float64Range(0, 1) < g.ratio) {
		pool = g.attack
	}
	p := pool[g.f.Number(0, len(pool)-1)]
	ev := p.render(g)
	ev.Pattern = p.Name
	return ev
}

// Write emits count lines to w.
func (g *Generator) Write(ctx context.Context, w io.Writer, count int) (int, error) {
	bw := bufio.NewWriter(w)
	for i := 0; i < count; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				_ = bw.Flush()
				return i, err
			}
		}
		if _, err := bw.WriteString(g.Next().Line + "\n"); err != nil {
			return i, fmt.Errorf("write line %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return count, fmt.Errorf("flush output: %w", err)
	}
	return count, nil
}

func (g *Generator) stamp() string {
	g.clock = g.clock.Add(time.Duration(g.f.Number(1, 250_000)) * time.Microsecond)
	return g.clock.Format("15:04:05.000000")
}

func (g *Generator) client() string {
	return fmt.Sprintf("%s.%d", g.f.IPv4Address(), g.f.Number(32768, 60999))
}

func (g *Generator) server(service string) string {
	return g.f.IPv4Address() + "." + service
}

func (g *Generator) pick(options []string) string {
	return options[g.f.Number(0, len(options)-1)]
}

func (g *Generator) packet(src, dst, payload string, expect model.Verdict) Event {
	return Event{
		Line:   fmt.Sprintf("%s IP %s > %s: %s", g.stamp(), src, dst, payload),
		Packet: true,
		Expect: expect,
	}
}
