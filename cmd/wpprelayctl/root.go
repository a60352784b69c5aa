package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matheus3301/wpprelay/internal/config"
	"github.com/matheus3301/wpprelay/internal/daemon"
	"github.com/matheus3301/wpprelay/internal/paths"
	"github.com/matheus3301/wpprelay/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globalFlags struct {
	config   string
	instance string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "wpprelayctl",
		Short:         "Maintenance commands for a wpprelay instance",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&g.config, "config", "", "Config file path (default ~/.wpprelay/config.toml).")
	cmd.PersistentFlags().StringVar(&g.instance, "instance", "", "Instance name (default \"main\").")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log store activity to stderr.")

	cmd.AddCommand(newIngestCmd(g))
	cmd.AddCommand(newMessagesCmd(g))
	cmd.AddCommand(newMarkReadCmd(g))
	cmd.AddCommand(newPingCmd(g))
	return cmd
}

// env bundles what every subcommand needs.
type env struct {
	instance string
	cfg      *config.Config
	store    store.Store
	logger   *zap.Logger
}

func (g *globalFlags) resolve() (string, *config.Config, *zap.Logger, error) {
	instance := paths.ResolveInstance(g.instance, os.LookupEnv)
	if err := paths.ValidateName(instance); err != nil {
		return "", nil, nil, err
	}
	cfg, err := config.LoadOrDefault(paths.ResolveConfig(g.config, os.LookupEnv))
	if err != nil {
		return "", nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return "", nil, nil, err
	}
	logger := zap.NewNop()
	if g.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return "", nil, nil, err
		}
	}
	return instance, cfg, logger, nil
}

// open resolves flags and opens the configured store. Callers close it.
func (g *globalFlags) open(ctx context.Context) (*env, error) {
	instance, cfg, logger, err := g.resolve()
	if err != nil {
		return nil, err
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout.Duration)
	defer cancel()
	st, err := daemon.OpenStore(connectCtx, cfg.Store, paths.Dir(instance), logger)
	if err != nil {
		return nil, err
	}
	return &env{instance: instance, cfg: cfg, store: st, logger: logger}, nil
}

func (e *env) close() {
	_ = e.store.Close()
	_ = e.logger.Sync()
}
