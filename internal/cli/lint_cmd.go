package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"polyglot/internal/lint"
	"polyglot/internal/settings"
)

func newLintCmd(a *app) *cobra.Command {
	var (
		format   string
		failOn   string
		minLevel string
		query    lint.Query
	)
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run the installed lint rules over all messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q (text|json)", format)
			}
			threshold := settings.Level(failOn)
			if failOn != "never" && (!threshold.Valid() || threshold == settings.LevelOff) {
				return fmt.Errorf("unknown --fail-on level %q (warning|error|never)", failOn)
			}
			if minLevel != "" {
				query.MinLevel = settings.Level(minLevel)
				if !query.MinLevel.Valid() {
					return fmt.Errorf("unknown --level %q", minLevel)
				}
			}

			ctx := cmd.Context()
			p, err := a.openProject(ctx)
			if err != nil {
				return err
			}
			if err := p.Reports().Init(ctx); err != nil {
				_ = p.Close(ctx)
				return err
			}
			reports, err := p.Reports().Get()
			if err != nil {
				_ = p.Close(ctx)
				return err
			}
			ruleErrs := p.RuleErrors().Get()
			projectErrs := p.Errors().Get()
			if err := a.closeProject(ctx, p); err != nil {
				return err
			}

			reports = lint.Filter(reports, query)
			out := newPrinter(cmd.OutOrStdout())
			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					out.report(r)
				}
				out.summary(lint.CountByLevel(reports))
			}
			for _, e := range projectErrs {
				a.logger.Warn("project error", "error", e)
			}
			for _, e := range ruleErrs {
				a.logger.Warn("rule failed", "rule", e.RuleID, "message", e.MessageID, "error", e.Err)
			}

			if failOn == "never" {
				return nil
			}
			failing := lint.Filter(reports, lint.Query{MinLevel: threshold})
			if len(failing) > 0 {
				return fmt.Errorf("%d report(s) at or above %s", len(failing), threshold)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|json)")
	cmd.Flags().StringVar(&failOn, "fail-on", "error", "exit non-zero on reports at or above this level (warning|error|never)")
	cmd.Flags().StringVar(&minLevel, "level", "", "only show reports at or above this level")
	cmd.Flags().StringVar(&query.RuleID, "rule", "", "only show reports of this rule")
	cmd.Flags().StringVar(&query.MessageID, "message", "", "only show reports about this message")
	cmd.Flags().StringVar(&query.LanguageTag, "language", "", "only show reports for this language tag")
	return cmd
}
