package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/pktwatch/internal/model"
)

type batch struct {
	seq   int
	lines []string
}

type processed struct {
	seq     int
	lines   int
	records []model.ClassifiedRecord
	// skips[i] is the number of unmatched lines before records[i];
	// skips[len(records)] counts the ones after the last record.
	skips []int
}

// runParallel fans batches out to workers and merges them back in input
// order, so the collector sees exactly the sequence runSequential would.
func (d *Driver) runParallel(ctx context.Context, lr *LineReader, sink *collector) error {
	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan batch, d.opts.QueueDepth)
	results := make(chan processed, d.opts.QueueDepth)

	// A read failure still lets every batch read so far through, so it is
	// reported after the group drains instead of cancelling it.
	var readErr error
	g.Go(func() error {
		defer close(batches)
		seq := 0
		for {
			lines, err := readBatch(lr, d.opts.BatchSize)
			if len(lines) > 0 {
				select {
				case batches <- batch{seq: seq, lines: lines}:
					seq++
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				readErr = fmt.Errorf("read input: %w", err)
				return nil
			}
		}
	})

	var workers sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for b := range batches {
				p := d.processBatch(b)
				select {
				case results <- p:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	pending := make(map[int]processed)
	next := 0
	for p := range results {
		pending[p.seq] = p
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			sink.merge(ready)
			next++
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// Every select may have won its send over Done; a cancelled run is still
	// reported as one.
	if err := ctx.Err(); err != nil {
		return err
	}
	return readErr
}

func readBatch(lr *LineReader, size int) ([]string, error) {
	lines := make([]string, 0, size)
	for len(lines) < size {
		line, err := lr.Next()
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (d *Driver) processBatch(b batch) processed {
	p := processed{seq: b.seq, lines: len(b.lines)}
	skipped := 0
	for _, line := range b.lines {
		rec, ok := d.Process(line)
		if !ok {
			skipped++
			continue
		}
		p.records = append(p.records, rec)
		p.skips = append(p.skips, skipped)
		skipped = 0
	}
	p.skips = append(p.skips, skipped)
	return p
}

func (c *collector) merge(p processed) {
	c.res.LinesRead += p.lines
	for i, rec := range p.records {
		c.skipped(p.skips[i])
		c.record(rec)
	}
	c.skipped(p.skips[len(p.records)])
}
