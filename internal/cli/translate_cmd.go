package cli

import (
	"context"
	"errors"
	"slices"

	"github.com/spf13/cobra"

	"polyglot/internal/config"
	"polyglot/internal/translate"
)

func newGeminiTranslator(ctx context.Context, cfg config.GeminiConfig) (translate.Translator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	g, err := translate.NewGemini(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	return translate.Wrap(g, translate.Retry(cfg.Retries, 0)), nil
}

func newTranslateCmd(a *app) *cobra.Command {
	var targets []string
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Machine-translate missing variants and save them through the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tr, err := a.newTranslator(ctx, a.cfg.Gemini)
			if err != nil {
				return err
			}
			p, err := a.openProject(ctx)
			if err != nil {
				return err
			}
			if p.SaveDisabled() {
				loadErrs := p.Errors().Get()
				_ = p.Close(ctx)
				return errors.Join(append([]error{errors.New("messages failed to load; refusing to translate")}, loadErrs...)...)
			}
			cfg := p.Settings().Get()
			if len(targets) == 0 {
				targets = cfg.LanguageTags
			}
			targets = slices.DeleteFunc(slices.Clone(targets), func(t string) bool {
				return !slices.Contains(cfg.LanguageTags, t)
			})

			stats, fillErr := translate.FillMissing(ctx, p.Messages(), tr, translate.FillOptions{
				SourceLanguageTag:  cfg.SourceLanguageTag,
				TargetLanguageTags: targets,
				BatchSize:          a.cfg.Gemini.BatchSize,
			})
			// Whatever was translated before a failure is still saved.
			if err := a.closeProject(ctx, p); err != nil {
				return errors.Join(fillErr, err)
			}
			out := newPrinter(cmd.OutOrStdout())
			out.ok("translated %d variant(s) with %s, rejected %d", stats.Translated, tr.Name(), stats.Rejected)
			return fillErr
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "target language tags (default: all project languages)")
	return cmd
}
