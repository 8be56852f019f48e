// Package cli implements the printdesk command line tool.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/MrEthical07/printdesk"
	"github.com/MrEthical07/printdesk/internal/obs"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// env is what every subcommand runs against. It is built in
// PersistentPreRunE and torn down in PersistentPostRunE.
type env struct {
	cfgFile string
	envFile string
	baseURL string

	cfg       printdesk.Config
	log       *zap.Logger
	client    *printdesk.Client
	closeKV   func() error
	telemetry *obs.OTel
}

// NewRootCommand returns the printdesk command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	root, _ := newRoot(out)
	return root
}

func newRoot(out io.Writer) (*cobra.Command, *env) {
	e := &env{}

	root := &cobra.Command{
		Use:   "printdesk",
		Short: "Talk to the print desk admin API with a managed session",
		Long: `printdesk sends authenticated requests to the print desk backend.

Tokens are kept in the configured credential store. An expired access token
is refreshed once and the request replayed; when the refresh itself fails the
stored pair is cleared and you need to log in again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return e.close(cmd.Context())
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVar(&e.cfgFile, "config", "", "config file (YAML); PRINTDESK_* env vars override it")
	root.PersistentFlags().StringVar(&e.envFile, "env-file", "", "dotenv file with PRINTDESK_* variables (default .env when present)")
	root.PersistentFlags().StringVar(&e.baseURL, "base-url", "", "backend base URL, overrides base_url")

	root.AddCommand(
		newRequestCommand(e),
		newTokenCommand(e),
		newMetricsCommand(e),
		newConfigCommand(e),
	)
	return root, e
}

// Execute runs the command tree and maps session expiry to a friendly message.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	root, e := newRoot(out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when RunE fails.
	_ = e.close(context.WithoutCancel(ctx))
	if se := sessionExpired(err); se != nil {
		return fmt.Errorf("session expired: log in again at %s", se.LoginURL)
	}
	return err
}

func (e *env) open(ctx context.Context) error {
	// godotenv never overrides variables that are already set.
	if e.envFile != "" {
		if err := godotenv.Load(e.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}
	if e.baseURL != "" {
		// LoadConfig validates, so the flag has to reach it as an env override.
		if err := setenv(printdesk.EnvPrefix+"_BASE_URL", e.baseURL); err != nil {
			return err
		}
	}
	cfg, err := printdesk.LoadConfig(e.cfgFile)
	if err != nil {
		return err
	}
	e.cfg = cfg

	e.log, err = obs.NewLogger(obs.LogConfig{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		App:    "printdesk",
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	e.telemetry, err = obs.SetupOTel(ctx, &obs.OTELConfig{
		Enable:      cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	kv, closeKV, err := printdesk.OpenStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	e.closeKV = closeKV

	e.client, err = printdesk.New().
		WithConfig(cfg).
		WithStore(kv).
		WithLogger(e.log).
		Build()
	return err
}

func (e *env) close(ctx context.Context) error {
	var err error
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
	if e.closeKV != nil {
		err = multierr.Append(err, e.closeKV())
		e.closeKV = nil
	}
	if e.telemetry != nil {
		err = multierr.Append(err, e.telemetry.Shutdown(ctx))
		e.telemetry = nil
	}
	if e.log != nil {
		// Sync on stderr fails with EINVAL on most terminals.
		_ = e.log.Sync()
		e.log = nil
	}
	return err
}
