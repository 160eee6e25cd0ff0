// Package cmd contains the gluon command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spacemeshos/gluon/config"
	"github.com/spacemeshos/gluon/log"
	"github.com/spacemeshos/gluon/metrics"
)

var (
	// Version is the app's semantic version. Designed to be overwritten by make.
	Version string

	// Branch is the git branch used to build the App. Designed to be overwritten by make.
	Branch string

	// Commit is the git commit used to build the app. Designed to be overwritten by make.
	Commit string
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"log-level":       "log-level",
	"log-encoder":     "log-encoder",
	"metrics":         "metrics",
	"metrics-address": "metrics-address",
	"listen":          "transport.listen",
	"peer":            "transport.peer",
	"base-url":        "blocksource.base-url",
	"cache-dir":       "blocksource.cache-dir",
	"sizing":          "recon.sizing",
}

type app struct {
	root    *cobra.Command
	vip     *viper.Viper
	conf    *config.Config
	logger  *zap.Logger
	metrics *metrics.Server
}

func newApp() *app {
	a := &app{vip: viper.New()}
	a.root = &cobra.Command{
		Use:               "gluon",
		Short:             "reconcile blocks against transaction pools",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	def := config.DefaultConfig()
	flags := a.root.PersistentFlags()
	flags.StringP("config", "c", "", "load configuration from file")
	flags.String("log-level", def.Log.Level, "log level")
	flags.String("log-encoder", def.Log.Encoder, "log encoder, console or json")
	flags.Bool("metrics", def.Metrics.Enabled, "serve prometheus metrics")
	flags.String("metrics-address", def.Metrics.Address, "address of the metrics server")
	flags.String("listen", def.Transport.Listen, "address for the inbound connection")
	flags.String("peer", def.Transport.Peer, "address of the peer")
	flags.String("base-url", def.BlockSource.BaseURL, "block explorer url")
	flags.String("cache-dir", def.BlockSource.CacheDir, "directory of cached blocks")
	flags.String("sizing", string(def.Recon.Sizing), "sketch sizing, optimum or graphene")
	for flag, key := range flagKeys {
		if err := a.vip.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("BUG: bind flag %s: %v", flag, err))
		}
	}
	a.root.AddCommand(a.sendCmd(), a.receiveCmd(), a.fetchCmd(), versionCmd())
	return a
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return log.ErrBadFlags(err)
	}
	conf, err := config.Load(path, a.vip)
	if err != nil {
		return err
	}
	logger, err := log.New(conf.Log)
	if err != nil {
		return log.ErrMalformedConfig(err)
	}
	a.conf = conf
	a.logger = logger
	if conf.Metrics.Enabled {
		srv, err := metrics.StartMetricsServer(logger.Named("metrics"), conf.Metrics.Address)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		a.metrics = srv
	}
	return nil
}

func (a *app) cleanup() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metrics.Stop(ctx); err != nil {
			a.logger.Warn("failed to stop metrics server", zap.Error(err))
		}
		a.metrics = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) execute(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	err := a.root.ExecuteContext(ctx)
	var fatal *log.FatalError
	if err != nil && a.logger != nil && errors.As(err, &fatal) {
		a.logger.Error("gluon failed", zap.Inline(fatal))
	}
	a.cleanup()
	return err
}

// Execute runs the command line until it completes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newApp().execute(ctx, os.Args[1:])
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		// version needs no configuration
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), Version)
			if Commit != "" && Branch != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "+%s+%s", Branch, Commit)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
