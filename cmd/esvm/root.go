package main

import (
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nooga/esvm/pkg/config"
	"github.com/nooga/esvm/pkg/vm"
)

// globalState is shared by all subcommands.
type globalState struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newGlobalState(fs afero.Fs, stdout, stderr io.Writer) *globalState {
	return &globalState{fs: fs, stdout: stdout, stderr: stderr, logger: zap.NewNop()}
}

func newRootCommand(gs *globalState) *cobra.Command {
	root := &cobra.Command{
		Use:           "esvm",
		Short:         "register-based script virtual machine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return gs.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = gs.logger.Sync()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&gs.configPath, "config", "c", config.DefaultFileName, "configuration file")
	flags.StringVar(&gs.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(getCmdRun(gs), getCmdDisasm(gs), getCmdSample(gs))
	return root
}

// setup loads the configuration and installs the logger.
func (gs *globalState) setup() error {
	cfg, err := config.Load(gs.fs, gs.configPath)
	if err != nil {
		return err
	}
	if gs.logLevel != "" {
		cfg.Log.Level = gs.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, err := cfg.Log.Build()
	if err != nil {
		return err
	}
	gs.cfg = cfg
	gs.logger = logger
	vm.SetLogger(logger.Named("vm"))
	return nil
}
