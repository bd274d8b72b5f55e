package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/internal/stats"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatal("nats server did not become ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func sampleResult() *pipeline.Result {
	records := []model.ClassifiedRecord{
		{Timestamp: "12:00:01.1", SourceAddress: "192.168.1.5", DestAddress: "10.0.0.1", Service: "ssh", DisplayInfo: "S", Verdict: model.VerdictSYNScan, Flags: "S"},
		{Timestamp: "12:00:01.2", SourceAddress: "10.0.0.2", DestAddress: "10.0.0.3", Service: "http", DisplayInfo: "P.", Verdict: model.VerdictNormal, Flags: "P."},
		{Timestamp: "12:00:01.3", SourceAddress: "10.0.0.9", DestAddress: "8.8.8.8", Service: "domain", DisplayInfo: "1 A? x.", Verdict: model.VerdictDNSQuery},
		{Timestamp: "12:00:01.4", SourceAddress: "172.16.0.4", DestAddress: "10.0.0.2", Service: "domain", DisplayInfo: "77+ AXFR?", Verdict: model.VerdictZoneTransfer},
	}
	agg := stats.NewAggregator()
	for _, r := range records {
		agg.Add(r)
	}
	return &pipeline.Result{
		RunID:        "run-1",
		Source:       "capture.txt",
		Mode:         "general",
		Records:      records,
		Stats:        agg.Statistics(),
		LinesRead:    5,
		LinesMatched: 4,
	}
}

func TestThreatSink_Deliver(t *testing.T) {
	srv := runServer(t)

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	threats := make(chan *nats.Msg, 16)
	runs := make(chan *nats.Msg, 4)
	_, err = sub.ChanSubscribe("test.threats", threats)
	require.NoError(t, err)
	_, err = sub.ChanSubscribe("test.runs", runs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	cfg := DefaultConfig()
	cfg.URL = srv.ClientURL()
	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	sink := NewThreatSink(client, "test", 10)
	assert.Equal(t, "nats", sink.Name())
	require.NoError(t, sink.Deliver(context.Background(), sampleResult()))

	var got []ThreatMessage
	for i := 0; i < 2; i++ {
		select {
		case msg := <-threats:
			var m ThreatMessage
			require.NoError(t, json.Unmarshal(msg.Data, &m))
			assert.Equal(t, "run-1", msg.Header.Get(HeaderRunID))
			assert.Equal(t, m.Record.Verdict.Slug(), msg.Header.Get(HeaderVerdict))
			got = append(got, m)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for threat message")
		}
	}
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Seq)
	assert.Equal(t, model.VerdictSYNScan, got[0].Record.Verdict)
	assert.Equal(t, model.VerdictZoneTransfer, got[1].Record.Verdict)
	assert.Equal(t, "capture.txt", got[1].Source)

	select {
	case msg := <-runs:
		var summary RunSummary
		require.NoError(t, json.Unmarshal(msg.Data, &summary))
		assert.Equal(t, "run-1", summary.RunID)
		assert.Equal(t, 5, summary.LinesRead)
		assert.Equal(t, int64(2), summary.Threats)
		assert.Len(t, summary.TopThreats, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run summary")
	}

	select {
	case msg := <-threats:
		t.Fatalf("unexpected extra threat message: %s", msg.Data)
	default:
	}
}

type recordingPublisher struct {
	subjects []string
	failOn   string
}

func (r *recordingPublisher) Publish(_ context.Context, subject string, _ []byte, _ map[string]string) error {
	if subject == r.failOn {
		return errors.New("broker unavailable")
	}
	r.subjects = append(r.subjects, subject)
	return nil
}

func (r *recordingPublisher) Flush(context.Context) error { return nil }
func (r *recordingPublisher) Close()                      {}

func TestThreatSink_DefaultPrefixAndOrder(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewThreatSink(pub, "", 5)

	require.NoError(t, sink.Deliver(context.Background(), sampleResult()))
	assert.Equal(t, []string{"pktwatch.threats", "pktwatch.threats", "pktwatch.runs"}, pub.subjects)
}

func TestThreatSink_PublishFailure(t *testing.T) {
	pub := &recordingPublisher{failOn: "pktwatch.runs"}
	sink := NewThreatSink(pub, "", 5)

	err := sink.Deliver(context.Background(), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run summary")
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond
	_, err := NewClient(cfg, nil)
	require.Error(t, err)
}
