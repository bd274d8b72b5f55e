package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/pktwatch/internal/model"
	"github.com/telhawk-systems/pktwatch/internal/pipeline"
	"github.com/telhawk-systems/pktwatch/pkg/output"
)

// errNotPacket is returned by explain for a line the parser does not match.
var errNotPacket = errors.New("line is not a packet line")

type explanation struct {
	Rule   string                 `json:"rule" yaml:"rule"`
	Threat bool                   `json:"threat" yaml:"threat"`
	Record model.ClassifiedRecord `json:"record" yaml:"record"`
}

func newExplainCmd(a *app) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "explain <line>",
		Short: "Show how a single capture line is classified",
		Example: `  pktwatch explain '12:00:01.123456 IP 192.168.1.5.51000 > 10.0.0.1.ssh: Flags [S], length 0'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("mode") {
				a.cfg.Analyzer.Mode = mode
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}
			d := pipeline.New(pipeline.Options{
				Mode:         a.cfg.ParserMode(),
				Classifier:   a.cfg.ClassifierOptions(),
				DisplayWidth: a.cfg.Analyzer.DisplayInfoWidth,
			}, a.logger)

			line := strings.Join(args, " ")
			rec, rule, ok := d.Explain(line)
			if !ok {
				return fmt.Errorf("%w: %q", errNotPacket, line)
			}
			e := explanation{Rule: rule, Threat: rec.Verdict.IsThreat(), Record: rec}

			switch a.output {
			case "json":
				return output.JSON(e)
			case "yaml":
				return output.YAML(e)
			}

			verdict := rec.Verdict.String()
			if e.Threat {
				verdict = output.Threat(verdict)
			}
			t := output.NewTable([]string{"FIELD", "VALUE"})
			t.AddRow([]string{"timestamp", rec.Timestamp})
			t.AddRow([]string{"source", rec.SourceAddress})
			t.AddRow([]string{"dest", rec.DestAddress})
			t.AddRow([]string{"service", rec.Service})
			t.AddRow([]string{"flags", rec.Flags})
			t.AddRow([]string{"info", rec.DisplayInfo})
			t.AddRow([]string{"rule", rule})
			t.AddRow([]string{"verdict", verdict})
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "parse mode: general, flags-only")
	return cmd
}
