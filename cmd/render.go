package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/internal/stats"
	"github.com/telhawk-systems/pktwatch/pkg/output"
)

// summary is the serialized shape of one run.
type summary struct {
	RunID        string                   `json:"run_id" yaml:"run_id"`
	Source       string                   `json:"source" yaml:"source"`
	Mode         string                   `json:"mode" yaml:"mode"`
	LinesRead    int                      `json:"lines_read" yaml:"lines_read"`
	LinesMatched int                      `json:"lines_matched" yaml:"lines_matched"`
	Threats      int64                    `json:"threats" yaml:"threats"`
	Partial      bool                     `json:"partial" yaml:"partial"`
	DurationMS   int64                    `json:"duration_ms" yaml:"duration_ms"`
	Report       stats.Report             `json:"report" yaml:"report"`
	Records      []model.ClassifiedRecord `json:"records,omitempty" yaml:"records,omitempty"`
}

func newSummary(res *pipeline.Result, topN int, records bool) summary {
	s := summary{
		RunID:        res.RunID,
		Source:       res.Source,
		Mode:         res.Mode,
		LinesRead:    res.LinesRead,
		LinesMatched: res.LinesMatched,
		Threats:      res.Stats.Threats.Total(),
		Partial:      res.Partial,
		DurationMS:   res.Duration().Milliseconds(),
		Report:       res.Stats.Report(topN),
	}
	if records {
		s.Records = res.Records
	}
	return s
}

func render(format string, res *pipeline.Result, topN int, records bool) error {
	s := newSummary(res, topN, records)
	switch format {
	case "json":
		return output.JSON(s)
	case "yaml":
		return output.YAML(s)
	}

	output.Heading("Run %s", s.RunID)
	output.Info("source %s, mode %s, %d lines read, %d matched, %d threats, %s",
		s.Source, s.Mode, s.LinesRead, s.LinesMatched, s.Threats, res.Duration().Round(time.Millisecond))

	renderFlags(s.Report.Flags)
	renderCounts("Top sources", "SOURCE", s.Report.Sources)
	renderCounts("Top services", "SERVICE", s.Report.Services)
	renderThreats(s.Report.Threats)
	if records {
		renderRecords(s.Records)
	}
	return nil
}

func renderFlags(rows []stats.FlagRow) {
	fmt.Fprintln(output.Out)
	output.Heading("TCP flags")
	t := output.NewTable([]string{"PATTERN", "TYPE", "COUNT"})
	for _, r := range rows {
		t.AddRow([]string{r.Pattern, r.Description, strconv.FormatInt(r.Count, 10)})
	}
	t.Render()
}

func renderCounts(title, keyHeader string, rows []stats.CountRow) {
	fmt.Fprintln(output.Out)
	output.Heading("%s", title)
	if len(rows) == 0 {
		output.Info("none")
		return
	}
	t := output.NewTable([]string{keyHeader, "COUNT"})
	for _, r := range rows {
		t.AddRow([]string{r.Key, strconv.FormatInt(r.Count, 10)})
	}
	t.Render()
}

func renderThreats(rows []stats.ThreatRow) {
	fmt.Fprintln(output.Out)
	output.Heading("Threats")
	if len(rows) == 0 {
		output.Success("no threats detected")
		return
	}
	t := output.NewTable([]string{"SOURCE NETWORK", "TARGET", "VERDICT", "COUNT"})
	for _, r := range rows {
		t.AddRow([]string{r.SourceNetwork, r.DestAddress, output.Threat(r.Verdict.String()), strconv.FormatInt(r.Count, 10)})
	}
	t.Render()
}

func renderRecords(recs []model.ClassifiedRecord) {
	fmt.Fprintln(output.Out)
	output.Heading("Records")
	t := output.NewTable([]string{"TIME", "SOURCE", "DEST", "SERVICE", "INFO", "VERDICT"})
	for _, r := range recs {
		verdict := r.Verdict.String()
		if r.Verdict.IsThreat() {
			verdict = output.Threat(verdict)
		}
		t.AddRow([]string{r.Timestamp, r.SourceAddress, r.DestAddress, r.Service, r.DisplayInfo, verdict})
	}
	t.Render()
}
