// Package cli implements the polyglot command-line tool on top of the
// project runtime.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"polyglot/internal/builtin"
	"polyglot/internal/config"
	"polyglot/internal/ctxlog"
	"polyglot/internal/lint"
	"polyglot/internal/module"
	"polyglot/internal/module/luamodule"
	"polyglot/internal/project"
	"polyglot/internal/storage"
	"polyglot/internal/tracing"
	"polyglot/internal/translate"
)

const serviceName = "polyglot"

// app is the state shared by all subcommands of one invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	fs      storage.Storage
	fsClose io.Closer

	shutdownTracing func(context.Context) error

	// newTranslator builds the machine translator for the translate command.
	newTranslator func(ctx context.Context, cfg config.GeminiConfig) (translate.Translator, error)
}

// newRootCmd builds the command tree. Configuration comes from the
// environment (and .env), overridden by persistent flags.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "polyglot",
		Short:         "Localization project runtime",
		Long:          `polyglot loads a localization project, validates its messages with lint rules and saves changes through the configured extension`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("root", "", "project root for the directory storage backend (default $POLYGLOT_ROOT or .)")
	flags.String("storage", "", "storage backend (dir|memory|s3|postgres|sqlite)")
	flags.StringP("settings", "s", "", "settings file path relative to the storage root")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("log-format", "", "log format (text|json)")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.String("env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newLintCmd(a))
	root.AddCommand(newModulesCmd(a))
	root.AddCommand(newTranslateCmd(a))
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	a := &app{newTranslator: newGeminiTranslator}
	err := newRootCmd(a).ExecuteContext(ctx)
	if cerr := a.teardown(ctx); cerr != nil {
		a.logger.Warn("shutdown failed", "error", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	envFile, _ := flags.GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	overrideString(cmd, "root", &cfg.Storage.Root)
	overrideString(cmd, "storage", &cfg.Storage.Backend)
	overrideString(cmd, "settings", &cfg.SettingsPath)
	overrideString(cmd, "log-level", &cfg.LogLevel)
	overrideString(cmd, "log-format", &cfg.LogFormat)
	a.cfg = cfg

	switch mode, _ := flags.GetString("color"); mode {
	case "on", "always":
		color.NoColor = false
	case "off", "never":
		color.NoColor = true
	}

	a.logger = ctxlog.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	ctx := ctxlog.WithLogger(cmd.Context(), a.logger)

	a.shutdownTracing, err = tracing.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	a.fs, a.fsClose, err = storage.Open(ctx, cfg.StorageOptions(), a.logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	cmd.SetContext(ctx)
	return nil
}

// teardown releases what setup opened. It is safe to call more than once.
func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.fsClose != nil {
		errs = append(errs, a.fsClose.Close())
		a.fsClose = nil
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(context.WithoutCancel(ctx)))
		a.shutdownTracing = nil
	}
	return errors.Join(errs...)
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if !cmd.Flags().Changed(name) {
		return
	}
	if v, err := cmd.Flags().GetString(name); err == nil {
		*dst = v
	}
}

// resolver serves built-in modules by id and Lua scripts by path.
func (a *app) resolver() (module.Resolver, error) {
	scripts, err := luamodule.NewResolver(a.fs, a.cfg.LuaCacheSize)
	if err != nil {
		return nil, err
	}
	return module.ChainResolver{builtin.Default(), scripts}, nil
}

func (a *app) openProject(ctx context.Context) (*project.Project, error) {
	policy, err := lint.ParseSourcePolicy(a.cfg.SourcePolicy)
	if err != nil {
		return nil, err
	}
	resolver, err := a.resolver()
	if err != nil {
		return nil, err
	}
	opts := module.DefaultOptions()
	opts.Concurrency = a.cfg.Concurrency
	return project.Load(ctx, project.Options{
		SettingsPath:   a.cfg.SettingsPath,
		Storage:        a.fs,
		Resolver:       resolver,
		Logger:         a.logger,
		Debounce:       a.cfg.Debounce,
		SourcePolicy:   policy,
		ResolveOptions: opts,
	})
}

// closeProject persists pending changes and reports any collected errors.
func (a *app) closeProject(ctx context.Context, p *project.Project) error {
	if err := p.Close(ctx); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}
