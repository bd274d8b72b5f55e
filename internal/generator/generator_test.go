package generator

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/pktwatch/internal/pipeline"
)

func TestGenerator_LinesClassifyAsExpected(t *testing.T) {
	g, err := New(Options{Seed: 42, AttackRatio: 0.5})
	require.NoError(t, err)
	d := pipeline.New(pipeline.Options{}, nil)

	seen := map[string]bool{}
	for i := 0; i < 2000; i++ {
		ev := g.Next()
		seen[ev.Pattern] = true

		rec, ok := d.Process(ev.Line)
		require.Equal(t, ev.Packet, ok, "pattern %s line %q", ev.Pattern, ev.Line)
		if ok {
			assert.Equal(t, ev.Expect, rec.Verdict, "pattern %s line %q", ev.Pattern, ev.Line)
		}
	}

	for _, name := range PatternNames() {
		assert.True(t, seen[name], "pattern %s never generated", name)
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	render := func() string {
		g, err := New(Options{Seed: 7, AttackRatio: 0.3})
		require.NoError(t, err)
		var buf bytes.Buffer
		n, err := g.Write(context.Background(), &buf, 200)
		require.NoError(t, err)
		require.Equal(t, 200, n)
		return buf.String()
	}

	first := render()
	assert.Equal(t, first, render())
	assert.Len(t, strings.Split(strings.TrimSuffix(first, "\n"), "\n"), 200)
}

func TestGenerator_AttackRatioBounds(t *testing.T) {
	t.Run("benign only", func(t *testing.T) {
		g, err := New(Options{Seed: 1, AttackRatio: 0})
		require.NoError(t, err)
		for i := 0; i < 300; i++ {
			p, _ := lookupPattern(g.Next().Pattern)
			assert.False(t, p.Attack, p.Name)
		}
	})

	t.Run("attacks only", func(t *testing.T) {
		g, err := New(Options{Seed: 1, AttackRatio: 1})
		require.NoError(t, err)
		for i := 0; i < 300; i++ {
			ev := g.Next()
			p, _ := lookupPattern(ev.Pattern)
			assert.True(t, p.Attack, p.Name)
			assert.True(t, ev.Expect.IsThreat(), p.Name)
		}
	})

	t.Run("mixed", func(t *testing.T) {
		g, err := New(Options{Seed: 7, AttackRatio: 0.5})
		require.NoError(t, err)
		attacks := 0
		for i := 0; i < 2000; i++ {
			if p, _ := lookupPattern(g.Next().Pattern); p.Attack {
				attacks++
			}
		}
		assert.InDelta(t, 1000, attacks, 150)
	})

	for _, ratio := range []float64{-0.1, 1.5} {
		_, err := New(Options{AttackRatio: ratio})
		assert.Error(t, err)
	}
}

func TestGenerator_Only(t *testing.T) {
	g, err := New(Options{Seed: 3, Only: []string{"dns-tunnel"}})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		assert.Equal(t, "dns-tunnel", g.Next().Pattern)
	}

	_, err = New(Options{Only: []string{"teleport"}})
	assert.ErrorIs(t, err, ErrUnknownPattern)
}

func TestGenerator_WriteHonoursContext(t *testing.T) {
	g, err := New(Options{Seed: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := g.Write(ctx, &bytes.Buffer{}, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}
