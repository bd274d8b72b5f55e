package statsstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/internal/stats"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func resultOf(runID string, finished time.Time, records ...model.ClassifiedRecord) *pipeline.Result {
	agg := stats.NewAggregator()
	for _, r := range records {
		agg.Add(r)
	}
	return &pipeline.Result{
		RunID:        runID,
		Source:       runID + ".txt",
		Records:      records,
		Stats:        agg.Statistics(),
		LinesRead:    len(records) + 1,
		LinesMatched: len(records),
		FinishedAt:   finished,
	}
}

var (
	synScan = model.ClassifiedRecord{SourceAddress: "10.0.0.5", DestAddress: "10.0.0.1", Service: "ssh", Verdict: model.VerdictSYNScan, Flags: "S"}
	reset   = model.ClassifiedRecord{SourceAddress: "10.0.0.1", DestAddress: "10.0.0.5", Service: "ssh", Verdict: model.VerdictRejected, Flags: "R."}
	dnsQ    = model.ClassifiedRecord{SourceAddress: "10.0.0.9", DestAddress: "8.8.8.8", Service: "domain", Verdict: model.VerdictDNSQuery}
)

func TestStore_RecordAccumulatesAcrossRuns(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStoreFromRedis(client, "test", 0)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, store.Record(ctx, resultOf("run-a", now, synScan, synScan, dnsQ)))
	require.NoError(t, store.Deliver(ctx, resultOf("run-b", now.Add(time.Minute), synScan, reset)))

	flags, err := store.Top(ctx, TableFlags, 0)
	require.NoError(t, err)
	assert.Equal(t, []stats.CountRow{
		{Key: "S", Count: 3},
		{Key: "R.", Count: 1},
		{Key: "non-TCP", Count: 1},
	}, flags)

	services, err := store.Top(ctx, TableServices, 1)
	require.NoError(t, err)
	assert.Equal(t, []stats.CountRow{{Key: "ssh", Count: 4}}, services)

	threats, err := store.TopThreats(ctx, 10)
	require.NoError(t, err)
	require.Len(t, threats, 2)
	assert.Equal(t, stats.ThreatKey{SourceNetwork: "10.0.0.*", DestAddress: "10.0.0.1", Verdict: model.VerdictSYNScan}, threats[0].ThreatKey)
	assert.Equal(t, int64(3), threats[0].Count)
	assert.Equal(t, model.VerdictRejected, threats[1].Verdict)
}

func TestStore_Runs(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStoreFromRedis(client, "", 0)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, store.Record(ctx, resultOf("old", now, synScan)))
	require.NoError(t, store.Record(ctx, resultOf("new", now.Add(time.Hour), synScan, dnsQ)))

	ids, err := store.RecentRuns(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	ids, err = store.RecentRuns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)

	sum, err := store.Run(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "new.txt", sum.Source)
	assert.Equal(t, int64(3), sum.LinesRead)
	assert.Equal(t, int64(2), sum.LinesMatched)
	assert.Equal(t, int64(1), sum.Threats)
	assert.False(t, sum.Partial)
	assert.Equal(t, now.Add(time.Hour), sum.FinishedAt)

	_, err = store.Run(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_TTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewStoreFromRedis(client, "ttl", time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, resultOf("r", time.Now(), synScan)))
	assert.Equal(t, time.Hour, mr.TTL("ttl:flags"))
	assert.Equal(t, time.Hour, mr.TTL("ttl:run:r"))

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("ttl:flags"))
}

func TestStore_RecordWithoutStats(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewStoreFromRedis(client, "x", 0)
	require.NoError(t, store.Record(context.Background(), &pipeline.Result{RunID: "r"}))
}

func TestNewStore(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewStore("redis://"+mr.Addr()+"/0", "p", 0)
	require.NoError(t, err)
	assert.Equal(t, "redis", store.Name())
	require.NoError(t, store.Close())

	_, err = NewStore("not a url", "p", 0)
	require.Error(t, err)
}

func TestThreatKeyEncoding(t *testing.T) {
	k := stats.ThreatKey{SourceNetwork: "192.168.1.*", DestAddress: "10.0.0.1", Verdict: model.RemoteAdmin("ssh")}
	got, ok := decodeThreat(encodeThreat(k))
	require.True(t, ok)
	assert.Equal(t, k, got)

	_, ok = decodeThreat("no separators")
	assert.False(t, ok)
}
