// Package statsstore keeps frequency counters that accumulate across runs in
// Redis, so several analyzers can feed one shared view.
//
// Redis Key Structure:
//
//	{prefix}:flags       - Hash of flag pattern -> count
//	{prefix}:sources     - Hash of source address -> count
//	{prefix}:services    - Hash of service -> count
//	{prefix}:threats     - Hash of "network|dest|verdict" -> count
//	{prefix}:runs        - Sorted set of run IDs scored by finish time
//	{prefix}:run:{id}    - Hash with one run's summary
package statsstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/internal/stats"
)

// Table names one of the accumulated hashes.
type Table string

const (
	TableFlags    Table = "flags"
	TableSources  Table = "sources"
	TableServices Table = "services"
	TableThreats  Table = "threats"

	DefaultKeyPrefix = "pktwatch"
)

// ErrRunNotFound is returned when a run summary is absent or expired.
var ErrRunNotFound = errors.New("run not found")

const threatSep = "|"

// RunSummary is what is kept per run.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Source       string    `json:"source"`
	LinesRead    int64     `json:"lines_read"`
	LinesMatched int64     `json:"lines_matched"`
	Threats      int64     `json:"threats"`
	Partial      bool      `json:"partial"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Store reads and writes the cross-run counters.
type Store struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore connects to redisURL and verifies the connection. A ttl of zero
// keeps keys forever; otherwise every write refreshes it.
func NewStore(redisURL, prefix string, ttl time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewStoreFromRedis(client, prefix, ttl), nil
}

// NewStoreFromRedis wraps an existing client.
func NewStoreFromRedis(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{redis: client, prefix: prefix, ttl: ttl}
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.redis.Close()
}

func (s *Store) Name() string { return "redis" }

// Deliver satisfies pipeline.Sink.
func (s *Store) Deliver(ctx context.Context, res *pipeline.Result) error {
	return s.Record(ctx, res)
}

func (s *Store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// Record adds one run's tables to the shared counters in a single pipeline.
func (s *Store) Record(ctx context.Context, res *pipeline.Result) error {
	if res.Stats == nil {
		return nil
	}
	pipe := s.redis.Pipeline()

	flagsKey := s.key(string(TableFlags))
	for _, e := range res.Stats.Flags.Entries() {
		pipe.HIncrBy(ctx, flagsKey, string(e.Key), e.Count)
	}
	sourcesKey := s.key(string(TableSources))
	for _, e := range res.Stats.Sources.Entries() {
		pipe.HIncrBy(ctx, sourcesKey, string(e.Key), e.Count)
	}
	servicesKey := s.key(string(TableServices))
	for _, e := range res.Stats.Services.Entries() {
		pipe.HIncrBy(ctx, servicesKey, string(e.Key), e.Count)
	}
	threatsKey := s.key(string(TableThreats))
	for _, e := range res.Stats.Threats.Entries() {
		pipe.HIncrBy(ctx, threatsKey, encodeThreat(e.Key), e.Count)
	}

	runKey := s.key("run", res.RunID)
	pipe.HSet(ctx, runKey, map[string]interface{}{
		"source":        res.Source,
		"lines_read":    res.LinesRead,
		"lines_matched": res.LinesMatched,
		"threats":       res.Stats.Threats.Total(),
		"partial":       strconv.FormatBool(res.Partial),
		"finished_at":   strconv.FormatInt(res.FinishedAt.Unix(), 10),
	})
	runsKey := s.key("runs")
	pipe.ZAdd(ctx, runsKey, redis.Z{Score: float64(res.FinishedAt.Unix()), Member: res.RunID})

	if s.ttl > 0 {
		for _, k := range []string{flagsKey, sourcesKey, servicesKey, threatsKey, runKey, runsKey} {
			pipe.Expire(ctx, k, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record run stats: %w", err)
	}
	return nil
}

// Top returns the n largest counters of table across every recorded run. Ties
// are broken by key so the order is stable. n <= 0 returns everything.
func (s *Store) Top(ctx context.Context, table Table, n int) ([]stats.CountRow, error) {
	all, err := s.redis.HGetAll(ctx, s.key(string(table))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}

	rows := make([]stats.CountRow, 0, len(all))
	for k, v := range all {
		count, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt counter %s[%s]: %w", table, k, err)
		}
		rows = append(rows, stats.CountRow{Key: k, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

// TopThreats is Top over the threat table with keys decoded.
func (s *Store) TopThreats(ctx context.Context, n int) ([]stats.ThreatRow, error) {
	rows, err := s.Top(ctx, TableThreats, n)
	if err != nil {
		return nil, err
	}
	out := make([]stats.ThreatRow, 0, len(rows))
	for _, r := range rows {
		key, ok := decodeThreat(r.Key)
		if !ok {
			continue
		}
		out = append(out, stats.ThreatRow{ThreatKey: key, Count: r.Count})
	}
	return out, nil
}

// Run returns the summary of one recorded run.
func (s *Store) Run(ctx context.Context, runID string) (*RunSummary, error) {
	h, err := s.redis.HGetAll(ctx, s.key("run", runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	if len(h) == 0 {
		return nil, ErrRunNotFound
	}

	sum := &RunSummary{RunID: runID, Source: h["source"]}
	sum.LinesRead, _ = strconv.ParseInt(h["lines_read"], 10, 64)
	sum.LinesMatched, _ = strconv.ParseInt(h["lines_matched"], 10, 64)
	sum.Threats, _ = strconv.ParseInt(h["threats"], 10, 64)
	sum.Partial, _ = strconv.ParseBool(h["partial"])
	if ts, err := strconv.ParseInt(h["finished_at"], 10, 64); err == nil {
		sum.FinishedAt = time.Unix(ts, 0).UTC()
	}
	return sum, nil
}

// RecentRuns lists up to n run IDs, newest first.
func (s *Store) RecentRuns(ctx context.Context, n int) ([]string, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	ids, err := s.redis.ZRevRange(ctx, s.key("runs"), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return ids, nil
}

func encodeThreat(k stats.ThreatKey) string {
	return k.SourceNetwork + threatSep + k.DestAddress + threatSep + string(k.Verdict)
}

func decodeThreat(s string) (stats.ThreatKey, bool) {
	parts := strings.SplitN(s, threatSep, 3)
	if len(parts) != 3 {
		return stats.ThreatKey{}, false
	}
	return stats.ThreatKey{SourceNetwork: parts[0], DestAddress: parts[1], Verdict: model.Verdict(parts[2])}, true
}
