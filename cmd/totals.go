package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/internal/stats"
	"github.com/telhawk-systems/pktwatch/internal/statsstore"
	"github.com/telhawk-systems/pktwatch/pkg/output"
)

type totals struct {
	Flags    []stats.CountRow         `json:"flags" yaml:"flags"`
	Sources  []stats.CountRow         `json:"sources" yaml:"sources"`
	Services []stats.CountRow         `json:"services" yaml:"services"`
	Threats  []stats.ThreatRow        `json:"threats" yaml:"threats"`
	Runs     []*statsstore.RunSummary `json:"runs" yaml:"runs"`
}

func newTotalsCmd(a *app) *cobra.Command {
	var (
		top  int
		runs int
	)

	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Show counters accumulated in Redis by --store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Redis.URL == "" {
				return fmt.Errorf("redis: %w: redis.url is empty", pipeline.ErrSinkDisabled)
			}
			store, err := statsstore.NewStore(a.cfg.Redis.URL, a.cfg.Redis.KeyPrefix, a.cfg.Redis.TTL)
			if err != nil {
				return err
			}
			defer store.Close()

			tot, err := loadTotals(cmd, store, top, runs)
			if err != nil {
				return err
			}

			switch a.output {
			case "json":
				return output.JSON(tot)
			case "yaml":
				return output.YAML(tot)
			}
			renderCounts("All-time flags", "PATTERN", tot.Flags)
			renderCounts("All-time sources", "SOURCE", tot.Sources)
			renderCounts("All-time services", "SERVICE", tot.Services)
			renderThreats(tot.Threats)
			if len(tot.Runs) > 0 {
				fmt.Fprintln(output.Out)
				output.Heading("Recent runs")
				t := output.NewTable([]string{"ID", "SOURCE", "LINES", "MATCHED", "THREATS"})
				for _, r := range tot.Runs {
					t.AddRow([]string{r.RunID, r.Source,
						strconv.FormatInt(r.LinesRead, 10), strconv.FormatInt(r.LinesMatched, 10),
						strconv.FormatInt(r.Threats, 10)})
				}
				t.Render()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "rows per table, 0 for all")
	cmd.Flags().IntVar(&runs, "runs", 5, "number of recent runs to show")
	return cmd
}

func loadTotals(cmd *cobra.Command, store *statsstore.Store, top, runs int) (*totals, error) {
	ctx := cmd.Context()
	tot := &totals{}
	var err error
	if tot.Flags, err = store.Top(ctx, statsstore.TableFlags, top); err != nil {
		return nil, err
	}
	if tot.Sources, err = store.Top(ctx, statsstore.TableSources, top); err != nil {
		return nil, err
	}
	if tot.Services, err = store.Top(ctx, statsstore.TableServices, top); err != nil {
		return nil, err
	}
	if tot.Threats, err = store.TopThreats(ctx, top); err != nil {
		return nil, err
	}
	if runs <= 0 {
		return tot, nil
	}
	ids, err := store.RecentRuns(ctx, runs)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		sum, err := store.Run(ctx, id)
		if err != nil {
			// Summaries expire before the ranking is trimmed.
			if errors.Is(err, statsstore.ErrRunNotFound) {
				continue
			}
			return nil, err
		}
		tot.Runs = append(tot.Runs, sum)
	}
	return tot, nil
}
