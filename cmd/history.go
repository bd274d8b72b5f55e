package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/pktwatch/internal/repository"
	"github.com/telhawk-systems/pktwatch/internal/stats"
	"github.com/telhawk-systems/pktwatch/pkg/output"
)

type runDetail struct {
	repository.Run `yaml:",inline"`
	Threats         []stats.ThreatRow `json:"threats" yaml:"threats"`
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show runs saved with --persist",
		Long: `Without an argument, list the most recent runs saved in PostgreSQL.
With a run ID, show that run and its threat table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := openRepository(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			if len(args) == 1 {
				run, err := repo.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				threats, err := repo.ThreatCounts(ctx, run.ID)
				if err != nil {
					return err
				}
				return renderRunDetail(a.output, runDetail{Run: *run, Threats: threats})
			}

			runs, err := repo.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			switch a.output {
			case "json":
				return output.JSON(runs)
			case "yaml":
				return output.YAML(runs)
			}
			if len(runs) == 0 {
				output.Info("no runs recorded")
				return nil
			}
			t := output.NewTable([]string{"ID", "SOURCE", "MODE", "LINES", "MATCHED", "THREATS", "FINISHED"})
			for _, r := range runs {
				source := r.Source
				if r.Partial {
					source += " (partial)"
				}
				t.AddRow([]string{
					r.ID, source, r.Mode,
					strconv.Itoa(r.LinesRead), strconv.Itoa(r.LinesMatched),
					strconv.FormatInt(r.ThreatCount, 10),
					r.FinishedAt.Local().Format(time.DateTime),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func renderRunDetail(format string, d runDetail) error {
	switch format {
	case "json":
		return output.JSON(d)
	case "yaml":
		return output.YAML(d)
	}
	output.Heading("Run %s", d.ID)
	output.Info("source %s, mode %s, %d lines read, %d matched, %d threats, finished %s",
		d.Source, d.Mode, d.LinesRead, d.LinesMatched, d.ThreatCount, d.FinishedAt.Local().Format(time.DateTime))
	if d.Partial {
		output.Warn("run stopped early, counts are partial")
	}
	renderThreats(d.Threats)
	return nil
}
