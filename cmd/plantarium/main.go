package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/plantarium/pkg/config"
	"github.com/chazu/plantarium/pkg/logging"
	"github.com/chazu/plantarium/pkg/nodes"
	"github.com/chazu/plantarium/pkg/server"
)

// Version is set at build time.
var Version = "dev"

// env is the state shared by every command, built before a command runs.
type env struct {
	configFile string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
	app    *server.App
}

func (e *env) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = e.logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}

	opts := cfg.SystemOptions()
	opts.RegisterNodes = nodes.All()
	e.cfg = cfg
	e.logger = logger
	e.app = server.NewApp(logger, opts)
	return nil
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "plantarium",
		Short: "Procedural plant generator",
		Long: `Plantarium evaluates node graphs of plant generators (stems, noise,
gravity, branches, berries) into triangle meshes.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&e.configFile, "config", "", "config file (default ./plantarium.yaml)")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(newGenerateCmd(e))
	root.AddCommand(newTypesCmd(e))
	root.AddCommand(newServeCmd(e))
	root.AddCommand(newWatchCmd(e))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
