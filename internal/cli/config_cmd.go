package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"polyglot/internal/builtin"
	"polyglot/internal/plugins/jsonfile"
	"polyglot/internal/settings"
	"polyglot/internal/storage"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check the project settings file",
	}
	cmd.AddCommand(newConfigValidateCmd(a))
	cmd.AddCommand(newConfigInitCmd(a))
	return cmd
}

func newConfigValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the project and report settings and module errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := a.openProject(ctx)
			if err != nil {
				return err
			}
			errs := p.Errors().Get()
			if err := a.closeProject(ctx, p); err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			if len(errs) == 0 {
				out.ok("%s is valid", a.cfg.SettingsPath)
				return nil
			}
			for _, e := range errs {
				out.failure("%v", e)
			}
			return fmt.Errorf("%d problem(s) in %s", len(errs), a.cfg.SettingsPath)
		},
	}
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		source      string
		languages   []string
		pathPattern string
		force       bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file using the built-in JSON extension and lint rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			path := a.cfg.SettingsPath
			if !force {
				_, err := a.fs.ReadFile(ctx, path)
				if err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				if !errors.Is(err, storage.ErrNotFound) {
					return err
				}
			}

			tags := []string{source}
			for _, l := range languages {
				if l = strings.TrimSpace(l); l != "" && l != source {
					tags = append(tags, l)
				}
			}
			cfg := settings.Settings{
				SourceLanguageTag: source,
				LanguageTags:      tags,
				Modules:           builtin.Default().IDs(),
				ModuleSettings: map[string]map[string]any{
					jsonfile.ID: {"pathPattern": pathPattern},
				},
			}
			if err := settings.Validate(cfg); err != nil {
				return err
			}
			data, err := settings.Marshal(cfg)
			if err != nil {
				return err
			}
			if err := a.fs.WriteFile(ctx, path, data); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			newPrinter(cmd.OutOrStdout()).ok("wrote %s", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "en", "source language tag")
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "additional language tags (comma separated)")
	cmd.Flags().StringVar(&pathPattern, "path-pattern", "messages/{languageTag}.json", "message file pattern for the JSON extension")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing settings file")
	return cmd
}
