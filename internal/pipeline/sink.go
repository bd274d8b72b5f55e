package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/pktwatch/internal/logging"
)

// ErrSinkDisabled is returned when a sink is requested but not configured.
var ErrSinkDisabled = errors.New("sink disabled")

// Sink receives the result of a finished run.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, res *Result) error
}

// SinkError pairs a delivery failure with the sink that produced it.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Deliver hands res to every sink concurrently. Each failure is logged; the
// returned error joins all of them so one broken sink does not hide another.
func Deliver(ctx context.Context, logger *logging.Logger, res *Result, sinks ...Sink) error {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx = logging.ContextWithRunID(ctx, res.RunID)

	errs := make([]error, len(sinks))
	var g errgroup.Group
	for i, s := range sinks {
		g.Go(func() error {
			start := time.Now()
			if err := s.Deliver(ctx, res); err != nil {
				errs[i] = &SinkError{Sink: s.Name(), Err: err}
				logger.ErrorContext(ctx, "sink delivery failed",
					logging.Sink(s.Name()),
					logging.Error(err),
				)
				return nil
			}
			logger.InfoContext(ctx, "sink delivered",
				logging.Sink(s.Name()),
				logging.Duration(time.Since(start)),
			)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
