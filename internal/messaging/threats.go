package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/internal/stats"
)

const (
	HeaderRunID   = "Pktwatch-Run-Id"
	HeaderVerdict = "Pktwatch-Verdict"

	DefaultSubjectPrefix = "pktwatch"
)

// ThreatMessage is published once per threat record.
type ThreatMessage struct {
	RunID  string                 `json:"run_id"`
	Source string                 `json:"source"`
	Seq    int                    `json:"seq"`
	Record model.ClassifiedRecord `json:"record"`
}

// RunSummary is published once per run after its threats.
type RunSummary struct {
	RunID        string            `json:"run_id"`
	Source       string            `json:"source"`
	Mode         string            `json:"mode"`
	LinesRead    int               `json:"lines_read"`
	LinesMatched int               `json:"lines_matched"`
	Threats      int64             `json:"threats"`
	Partial      bool              `json:"partial"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	TopThreats   []stats.ThreatRow `json:"top_threats"`
}

// ThreatSink fans a run's threat records out to "<prefix>.threats" and its
// summary to "<prefix>.runs".
type ThreatSink struct {
	pub    Publisher
	prefix string
	topN   int
}

// NewThreatSink publishes through pub. An empty prefix uses the default.
func NewThreatSink(pub Publisher, prefix string, topN int) *ThreatSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &ThreatSink{pub: pub, prefix: prefix, topN: topN}
}

func (s *ThreatSink) Name() string { return "nats" }

// ThreatSubject is where per-record threat messages go.
func (s *ThreatSink) ThreatSubject() string { return s.prefix + ".threats" }

// RunSubject is where run summaries go.
func (s *ThreatSink) RunSubject() string { return s.prefix + ".runs" }

// Deliver publishes every threat record in input order, then the summary.
func (s *ThreatSink) Deliver(ctx context.Context, res *pipeline.Result) error {
	seq := 0
	for _, rec := range res.Records {
		if !rec.Verdict.IsThreat() {
			continue
		}
		data, err := json.Marshal(ThreatMessage{RunID: res.RunID, Source: res.Source, Seq: seq, Record: rec})
		if err != nil {
			return fmt.Errorf("marshal threat: %w", err)
		}
		headers := map[string]string{
			HeaderRunID:   res.RunID,
			HeaderVerdict: rec.Verdict.Slug(),
		}
		if err := s.pub.Publish(ctx, s.ThreatSubject(), data, headers); err != nil {
			return fmt.Errorf("publish threat %d: %w", seq, err)
		}
		seq++
	}

	summary := RunSummary{
		RunID:        res.RunID,
		Source:       res.Source,
		Mode:         res.Mode,
		LinesRead:    res.LinesRead,
		LinesMatched: res.LinesMatched,
		Partial:      res.Partial,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
		TopThreats:   []stats.ThreatRow{},
	}
	if res.Stats != nil {
		summary.Threats = res.Stats.Threats.Total()
		summary.TopThreats = res.Stats.Report(s.topN).Threats
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if err := s.pub.Publish(ctx, s.RunSubject(), data, map[string]string{HeaderRunID: res.RunID}); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	return s.pub.Flush(ctx)
}
