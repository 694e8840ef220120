// Package cli wires the migrator operations to cobra commands
package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/app"
	"github.com/jkdp/printshop-migrate/pkg/logger"
)

// NewAppFunc defines the function signature for creating a new app
type NewAppFunc func(cfg *config.Config, opts ...app.AppOption) app.AppInterface

// Option configures the root command
type Option func(*runtime)

// WithNewApp replaces the app constructor
func WithNewApp(fn NewAppFunc) Option {
	return func(r *runtime) {
		r.newApp = fn
	}
}

// WithAppOptions passes options to every app the commands create
func WithAppOptions(opts ...app.AppOption) Option {
	return func(r *runtime) {
		r.appOpts = append(r.appOpts, opts...)
	}
}

// runtime holds the state shared by the commands of one invocation
type runtime struct {
	cfgFile   string
	logLevel  string
	logFormat string

	newApp  NewAppFunc
	appOpts []app.AppOption
}

// NewRootCommand builds the command tree
func NewRootCommand(opts ...Option) *cobra.Command {
	r := &runtime{newApp: app.NewApp}
	for _, opt := range opts {
		opt(r)
	}

	root := &cobra.Command{
		Use:   "printshop-migrate",
		Short: "Print-shop database migrator",
		Long: `printshop-migrate evolves the print-shop business database from the
document-store import into the normalized relational schema.

Each version runs in its own transaction and is recorded in the database,
so "up" only applies what is still pending.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&r.cfgFile, "config", "c", config.DefaultConfigFile, "JSON credentials file")
	root.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	root.PersistentFlags().StringVar(&r.logFormat, "log-format", "", "Log format: console or json (default from config)")

	root.AddCommand(
		newUpCommand(r),
		newStatusCommand(r),
		newBaselineCommand(r),
		newImportCommand(r),
		newVerifyCommand(r),
		newVersionCommand(),
	)

	return root
}

// Execute runs the command line and returns the error to report
func Execute(ctx context.Context, args []string, opts ...Option) error {
	root := NewRootCommand(opts...)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// loadConfig reads the credentials file and applies the logging flags
func (r *runtime) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ConfigFile: r.cfgFile,
		Required:   cmd.Flags().Changed("config"),
	})
	if err != nil {
		return nil, err
	}

	if r.logLevel != "" {
		cfg.LogLevel = r.logLevel
	}
	if r.logFormat != "" {
		cfg.LogFormat = r.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp loads the configuration, connects and runs fn. The pool is
// always released afterwards.
func (r *runtime) withApp(cmd *cobra.Command, fn func(ctx context.Context, a app.AppInterface) error) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.LogLevel))
	log := logger.New(cmd.ErrOrStderr(), cfg.LogFormat)

	opts := append([]app.AppOption{app.WithLogger(log)}, r.appOpts...)
	a := r.newApp(cfg, opts...)

	ctx := cmd.Context()
	if err := a.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.Shutdown(context.Background()); err != nil {
			log.WithField("error", err.Error()).Warn("Failed to shut down cleanly")
		}
	}()

	return fn(ctx, a)
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
