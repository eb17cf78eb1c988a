package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tensorleaf/go-hdf5/hdf5"
)

type config struct {
	v   *viper.Viper
	log *zap.Logger
}

func (c *config) format() string { return c.v.GetString("format") }

func newRootCmd() *cobra.Command {
	c := &config{v: viper.New(), log: zap.NewNop()}
	var cfgFile string

	root := &cobra.Command{
		Use:           "h5chunks",
		Short:         "Inspect the chunk layout of HDF5 files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cfgFile); err != nil {
				return err
			}
			log, err := newLogger(c.v.GetString("log-level"))
			if err != nil {
				return err
			}
			c.log = log
			hdf5.SetLogger(log)
			switch f := c.format(); f {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unknown output format %q", f)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.log.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("format", "table", "output format: table, json or yaml")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	for _, name := range []string{"format", "log-level"} {
		must(c.v.BindPFlag(name, flags.Lookup(name)))
	}

	root.AddCommand(newLsCmd(c), newChunksCmd(c), newRefSizeCmd(c))
	return root
}

// must panics on errors that only a programming mistake can cause.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

// load reads the optional config file and H5CHUNKS_* environment variables.
// Flags set on the command line win over both.
func (c *config) load(cfgFile string) error {
	c.v.SetEnvPrefix("H5CHUNKS")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if cfgFile == "" {
		return nil
	}
	c.v.SetConfigFile(cfgFile)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", cfgFile, err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}
