// Package pipeline drives capture text through parse, normalize, classify and
// aggregate, producing the record list and statistics of one run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/telhawk-systems/pktwatch/internal/classifier"
	"github.com/telhawk-systems/pktwatch/internal/endpoint"
	"github.com/telhawk-systems/pktwatch/internal/logging"
	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/parser"
	"github.com/telhawk-systems/pktwatch/internal/stats"
)

const (
	DefaultDisplayWidth = 30
	DefaultBatchSize    = 512
)

// Options configures a Driver.
type Options struct {
	Mode       parser.Mode
	Classifier classifier.Options

	// DisplayWidth caps the payload excerpt stored for records without flags.
	DisplayWidth int

	// Workers > 1 parses and classifies batches in parallel. Output is
	// identical to the sequential path.
	Workers    int
	BatchSize  int
	QueueDepth int
}

// Observer is told about every record and skipped line, in input order, from
// a single goroutine.
type Observer interface {
	OnRecord(rec model.ClassifiedRecord)
	OnSkipped(n int)
}

// Result is everything one run produced.
type Result struct {
	RunID        string
	Source       string
	Mode         string
	Records      []model.ClassifiedRecord
	Stats        *stats.Statistics
	LinesRead    int
	LinesMatched int
	StartedAt    time.Time
	FinishedAt   time.Time

	// Partial is set when the run stopped early on a read failure or
	// cancellation; the error returned alongside says why.
	Partial bool
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Driver runs analyses. A Driver may be reused; every run gets its own
// aggregator and record list.
type Driver struct {
	opts       Options
	parser     *parser.Parser
	classifier *classifier.Classifier
	observers  []Observer
	logger     *logging.Logger
}

// New creates a Driver. A nil logger discards output.
func New(opts Options, logger *logging.Logger, observers ...Observer) *Driver {
	if opts.DisplayWidth <= 0 {
		opts.DisplayWidth = DefaultDisplayWidth
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 2 * opts.Workers
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Driver{
		opts:       opts,
		parser:     parser.New(opts.Mode),
		classifier: classifier.New(opts.Classifier),
		observers:  observers,
		logger:     logger,
	}
}

// Classifier returns the rule engine the driver uses.
func (d *Driver) Classifier() *classifier.Classifier {
	return d.classifier
}

// RunFile opens path and runs it. Failing to open is terminal.
func (d *Driver) RunFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	defer f.Close()
	return d.Run(ctx, path, f)
}

// Run reads r to the end in a single pass. On a read failure the records
// accumulated so far come back in a Result marked Partial, with the error.
func (d *Driver) Run(ctx context.Context, source string, r io.Reader) (*Result, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	res := &Result{
		RunID:     id.String(),
		Source:    source,
		Mode:      d.opts.Mode.String(),
		Records:   []model.ClassifiedRecord{},
		StartedAt: time.Now().UTC(),
	}
	ctx = logging.ContextWithRunID(ctx, res.RunID)
	d.logger.InfoContext(ctx, "analysis started",
		logging.Source(source),
		logging.Mode(res.Mode),
		logging.Workers(d.opts.Workers),
	)

	agg := stats.NewAggregator()
	sink := &collector{res: res, agg: agg, observers: d.observers}

	if d.opts.Workers > 1 {
		err = d.runParallel(ctx, NewLineReader(r), sink)
	} else {
		err = d.runSequential(ctx, NewLineReader(r), sink)
	}

	res.Stats = agg.Statistics()
	res.FinishedAt = time.Now().UTC()
	if err != nil {
		res.Partial = true
		d.logger.ErrorContext(ctx, "analysis stopped early",
			logging.Source(source),
			logging.Lines(res.LinesRead),
			logging.Records(len(res.Records)),
			logging.Error(err),
		)
		return res, fmt.Errorf("analyze %s: %w", source, err)
	}

	d.logger.InfoContext(ctx, "analysis finished",
		logging.Source(source),
		logging.Lines(res.LinesRead),
		logging.Matched(res.LinesMatched),
		logging.Threats(res.Stats.Threats.Total()),
		logging.Duration(res.Duration()),
	)
	return res, nil
}

func (d *Driver) runSequential(ctx context.Context, lr *LineReader, sink *collector) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := lr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		sink.res.LinesRead++
		if rec, ok := d.Process(line); ok {
			sink.record(rec)
		} else {
			sink.skipped(1)
		}
	}
}

// Process runs one line through every stage. ok is false for lines that are
// not packet lines; nothing partial is ever produced.
func (d *Driver) Process(line string) (rec model.ClassifiedRecord, ok bool) {
	rec, _, ok = d.Explain(line)
	return rec, ok
}

// Explain is Process plus the name of the classifier rule that decided the
// verdict.
func (d *Driver) Explain(line string) (rec model.ClassifiedRecord, rule string, ok bool) {
	ev, ok := d.parser.Parse(line)
	if !ok {
		return model.ClassifiedRecord{}, "", false
	}
	src := endpoint.Split(ev.SourceRaw)
	dst := endpoint.Split(ev.DestRaw)
	service := endpoint.EffectiveService(src, dst)
	flags := d.parser.Flags(ev)

	verdict, rule := d.classifier.Explain(classifier.Input{
		Flags:   flags,
		Service: service,
		Payload: ev.Payload,
	})

	return model.ClassifiedRecord{
		Timestamp:     ev.Timestamp,
		SourceAddress: src.Address,
		DestAddress:   dst.Address,
		Service:       service,
		DisplayInfo:   displayInfo(flags, ev.Payload, d.opts.DisplayWidth),
		Verdict:       verdict,
		Flags:         flags,
	}, rule, true
}

// displayInfo is the flags when present, else a payload excerpt of at most
// width characters followed by "..." when cut.
func displayInfo(flags, payload string, width int) string {
	if flags != "" {
		return flags
	}
	if utf8.RuneCountInString(payload) <= width {
		return payload
	}
	n := 0
	for i := range payload {
		if n == width {
			return payload[:i] + "..."
		}
		n++
	}
	return payload
}

// collector is the single writer of a run's records and statistics.
type collector struct {
	res       *Result
	agg       *stats.Aggregator
	observers []Observer
}

func (c *collector) record(rec model.ClassifiedRecord) {
	c.res.LinesMatched++
	c.res.Records = append(c.res.Records, rec)
	c.agg.Add(rec)
	for _, o := range c.observers {
		o.OnRecord(rec)
	}
}

func (c *collector) skipped(n int) {
	if n == 0 {
		return
	}
	for _, o := range c.observers {
		o.OnSkipped(n)
	}
}
