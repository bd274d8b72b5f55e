package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	name  string
	err   error
	calls atomic.Int32
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Deliver(context.Context, *Result) error {
	f.calls.Add(1)
	return f.err
}

func TestDeliver(t *testing.T) {
	res := &Result{RunID: "r"}

	t.Run("all succeed", func(t *testing.T) {
		a, b := &fakeSink{name: "a"}, &fakeSink{name: "b"}
		require.NoError(t, Deliver(context.Background(), nil, res, a, b))
		assert.Equal(t, int32(1), a.calls.Load())
		assert.Equal(t, int32(1), b.calls.Load())
	})

	t.Run("failures are joined", func(t *testing.T) {
		errA := errors.New("a down")
		errC := errors.New("c down")
		a := &fakeSink{name: "a", err: errA}
		b := &fakeSink{name: "b"}
		c := &fakeSink{name: "c", err: errC}

		err := Deliver(context.Background(), nil, res, a, b, c)
		require.Error(t, err)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errC)
		assert.Equal(t, int32(1), b.calls.Load())

		var se *SinkError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "a", se.Sink)
	})

	t.Run("no sinks", func(t *testing.T) {
		assert.NoError(t, Deliver(context.Background(), nil, res))
	})
}
