package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/pktwatch/internal/model"
)

func TestRecorder(t *testing.T) {
	read := testutil.ToFloat64(LinesRead)
	matched := testutil.ToFloat64(LinesMatched)
	skipped := testutil.ToFloat64(LinesSkipped)
	syn := testutil.ToFloat64(VerdictsTotal.WithLabelValues("syn_scan"))
	admin := testutil.ToFloat64(VerdictsTotal.WithLabelValues("remote_admin"))

	var r Recorder
	r.OnRecord(model.ClassifiedRecord{Verdict: model.VerdictSYNScan})
	r.OnRecord(model.ClassifiedRecord{Verdict: model.RemoteAdmin("ssh")})
	r.OnSkipped(3)

	assert.Equal(t, read+5, testutil.ToFloat64(LinesRead))
	assert.Equal(t, matched+2, testutil.ToFloat64(LinesMatched))
	assert.Equal(t, skipped+3, testutil.ToFloat64(LinesSkipped))
	assert.Equal(t, syn+1, testutil.ToFloat64(VerdictsTotal.WithLabelValues("syn_scan")))
	assert.Equal(t, admin+1, testutil.ToFloat64(VerdictsTotal.WithLabelValues("remote_admin")))
}

func TestObserveRun(t *testing.T) {
	complete := testutil.ToFloat64(RunsTotal.WithLabelValues("complete"))
	partial := testutil.ToFloat64(RunsTotal.WithLabelValues("partial"))

	ObserveRun(150*time.Millisecond, false)
	ObserveRun(time.Second, true)

	assert.Equal(t, complete+1, testutil.ToFloat64(RunsTotal.WithLabelValues("complete")))
	assert.Equal(t, partial+1, testutil.ToFloat64(RunsTotal.WithLabelValues("partial")))
	assert.Equal(t, 1, testutil.CollectAndCount(RunDuration))
}

func TestServe_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Serve(ctx, "127.0.0.1:0"))
}
