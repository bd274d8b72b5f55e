package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/pktwatch/internal/classifier"
	"github.com/telhawk-systems/pktwatch/pkg/output"
)

type ruleRow struct {
	Order       int    `json:"order" yaml:"order"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

func newRulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the classifier rules in evaluation order",
		Long: `List the classifier rules in the order they are tried. The first rule
that matches decides the verdict; a record no rule matches is Normal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := classifier.New(a.cfg.ClassifierOptions())
			var rows []ruleRow
			for i, r := range c.Rules() {
				rows = append(rows, ruleRow{Order: i + 1, Name: r.Name, Description: r.Description})
			}

			switch a.output {
			case "json":
				return output.JSON(rows)
			case "yaml":
				return output.YAML(rows)
			}

			output.Info("sensitive services: %s, dns length cutoff: %d",
				strings.Join(a.cfg.Analyzer.SensitiveServices, ", "), a.cfg.Analyzer.DNSLengthCutoff)
			t := output.NewTable([]string{"#", "RULE", "DESCRIPTION"})
			for _, r := range rows {
				t.AddRow([]string{strconv.Itoa(r.Order), r.Name, r.Description})
			}
			t.Render()
			return nil
		},
	}
}
