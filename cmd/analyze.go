package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/pktwatch/internal/metrics"
	"github.com/telhawk-systems/pktwatch/internal/pcapsource"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/pkg/output"
)

type analyzeOptions struct {
	mode    string
	workers int
	top     int
	records bool
	pcap    bool
	sinks   sinkFlags
}

func newAnalyzeCmd(a *app) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze [file|-]",
		Short: "Analyze a capture log",
		Long: `Read a tcpdump-style capture log, classify every packet line and print
top-N statistics. With no file, or "-", input is read from stdin.

Examples:
  # Analyze a text capture
  pktwatch analyze capture.txt

  # Pipe tcpdump straight in, in flags-only mode
  tcpdump -nr dump.pcap | pktwatch analyze --mode flags-only -

  # Read a pcap file directly and publish threats to NATS
  pktwatch analyze --pcap --publish dump.pcap

  # Full record list as JSON
  pktwatch analyze --records -o json capture.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return a.runAnalyze(cmd, opts, path)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mode, "mode", "", "parse mode: general, flags-only (default from config)")
	f.IntVar(&opts.workers, "workers", 0, "parallel classification workers (default from config)")
	f.IntVar(&opts.top, "top", 0, "rows per statistics table, 0 for all (default from config)")
	f.BoolVar(&opts.records, "records", false, "include the full record list")
	f.BoolVar(&opts.pcap, "pcap", false, "input is a pcap or pcapng capture")
	opts.sinks.register(f)
	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, opts *analyzeOptions, path string) error {
	ctx := cmd.Context()
	cfg := a.cfg

	f := cmd.Flags()
	if f.Changed("mode") {
		cfg.Analyzer.Mode = opts.mode
	}
	if f.Changed("workers") {
		cfg.Analyzer.Workers = opts.workers
	}
	if f.Changed("top") {
		cfg.Analyzer.TopN = opts.top
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sinks, closeSinks, err := openSinks(ctx, cfg, opts.sinks, a.logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	if cfg.Metrics.Enabled {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Listen); err != nil {
				a.logger.Warn("metrics listener failed", "listen", cfg.Metrics.Listen, "error", err)
			}
		}()
	}

	driver := pipeline.New(pipeline.Options{
		Mode:         cfg.ParserMode(),
		Classifier:   cfg.ClassifierOptions(),
		DisplayWidth: cfg.Analyzer.DisplayInfoWidth,
		Workers:      cfg.Analyzer.Workers,
		BatchSize:    cfg.Analyzer.BatchSize,
		QueueDepth:   cfg.Analyzer.QueueDepth,
	}, a.logger, metrics.Recorder{})

	res, runErr := a.runInput(ctx, driver, cmd.InOrStdin(), path, opts.pcap)
	if res == nil {
		return runErr
	}
	metrics.ObserveRun(res.Duration(), res.Partial)
	if runErr != nil {
		output.Warn("input ended early, results are partial: %v", runErr)
		if len(sinks) > 0 {
			output.Warn("partial run not delivered to %d sink(s)", len(sinks))
		}
	}

	if err := render(a.output, res, cfg.Analyzer.TopN, opts.records); err != nil {
		return err
	}

	sinkErr := pipeline.Deliver(ctx, a.logger, res, deliverable(res, sinks)...)
	var se *pipeline.SinkError
	for _, err := range unwrapJoined(sinkErr) {
		if errors.As(err, &se) {
			metrics.SinkErrors.WithLabelValues(se.Sink).Inc()
		}
	}
	return errors.Join(runErr, sinkErr)
}

// deliverable returns the sinks res may be handed to. Partial runs reach none
// of them, so accumulated totals and history only hold complete runs.
func deliverable(res *pipeline.Result, sinks []pipeline.Sink) []pipeline.Sink {
	if res.Partial {
		return nil
	}
	return sinks
}

func (a *app) runInput(ctx context.Context, d *pipeline.Driver, stdin io.Reader, path string, pcap bool) (*pipeline.Result, error) {
	if !pcap {
		if path == "-" {
			return d.Run(ctx, "stdin", stdin)
		}
		return d.RunFile(ctx, path)
	}

	in := stdin
	name := "stdin"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input %s: %w", path, err)
		}
		defer f.Close()
		in, name = f, path
	}
	lines, err := pcapsource.Lines(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("read capture %s: %w", name, err)
	}
	defer lines.Close()
	return d.Run(ctx, name, lines)
}

func unwrapJoined(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
