// Package cli implements the contaconmigo command line client.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/audit"
	"github.com/contaconmigo/contaconmigo-go/config"
	"github.com/contaconmigo/contaconmigo-go/metrics"
	"github.com/contaconmigo/contaconmigo-go/remote"
)

// app carries flags and the per-invocation client.
type app struct {
	cfgPath string
	baseURL string
	output  string

	cfg      *config.Config
	store    contaconmigo.CredentialStore
	client   *contaconmigo.Client
	audit    *audit.Logger
	registry *prometheus.Registry
	closers  []io.Closer
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return Run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// Run executes one command line. Resources opened for the command are
// released before it returns, whether the command failed or not.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if terr := a.teardown(); err == nil {
		err = terr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "contaconmigo",
		Short:         "Track counters and totals on a contaconmigo backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	defaultCfg := ""
	if dir, err := config.Dir(); err == nil {
		defaultCfg = filepath.Join(dir, "config.yaml")
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", defaultCfg, "config file path")
	root.PersistentFlags().StringVar(&a.baseURL, "base-url", "", "backend base URL (overrides config)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table|json")

	root.AddCommand(
		cmdLogin(a), cmdLogout(a), cmdSignUp(a), cmdForgotPassword(a), cmdResetPassword(a),
		cmdWhoami(a), cmdHealth(a), cmdToken(a),
		cmdTemplates(a), cmdEntries(a), cmdTotals(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.output != "table" && a.output != "json" {
		return fmt.Errorf("unknown output format %q", a.output)
	}

	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.Client.BaseURL = a.baseURL
	}
	a.cfg = cfg

	logger := cfg.NewLogger(cmd.ErrOrStderr())

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		m = metrics.New(true, a.registry)
	}

	if cfg.Audit.Enabled {
		opt := audit.WithSlogHandler(logger)
		if cfg.Audit.Path != "" {
			f, err := os.OpenFile(cfg.Audit.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}
			a.closers = append(a.closers, f)
			opt = audit.WithWriterHandler(f)
		}
		a.audit = audit.New(0, opt)
	}

	ctx := cmd.Context()
	store, storeCloser, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	stderr := cmd.ErrOrStderr()
	client, err := remote.NewClient(cfg.Client, store,
		remote.WithCloser(storeCloser),
		remote.WithLogger(logger),
		remote.WithMetrics(m),
		remote.WithAudit(a.audit),
		remote.WithOnTerminate(func(_ context.Context, reason contaconmigo.AuthReason) {
			if reason == contaconmigo.ReasonLogout {
				return
			}
			fmt.Fprintf(stderr, "Session ended (%s). Run `contaconmigo login` to sign in again.\n", reason)
		}),
	)
	if err != nil {
		_ = storeCloser.Close()
		return err
	}
	a.client = client

	return client.Session().Restore(ctx)
}

func (a *app) teardown() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.client != nil {
		keep(a.client.Close())
	}
	// Flush audit events before their file is closed.
	keep(a.audit.Close())
	for _, c := range a.closers {
		keep(c.Close())
	}
	if a.registry != nil && a.cfg.Metrics.Textfile != "" {
		keep(prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.registry))
	}
	a.client, a.audit, a.closers, a.registry = nil, nil, nil, nil
	return firstErr
}
