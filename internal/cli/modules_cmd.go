package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List installed extensions and lint rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := a.openProject(ctx)
			if err != nil {
				return err
			}
			installed := p.Installed()
			errs := p.Errors().Get()
			if err := a.closeProject(ctx, p); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tID\tLEVEL\tSOURCE")
			for _, m := range installed {
				level := string(m.Level)
				if level == "" {
					level = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Kind, m.ID, level, m.Source)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			for _, e := range errs {
				out.failure("%v", e)
			}
			return nil
		},
	}
}
