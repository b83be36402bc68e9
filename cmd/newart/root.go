package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rikiramadhan1028/NEW-ART/internal/config"
)

// cli carries state shared by all subcommands.
type cli struct {
	v       *viper.Viper
	cfgFile string
	debug   bool
	cfg     config.Config
}

func newRootCommand() *cobra.Command {
	c := &cli{v: config.NewViper()}

	root := &cobra.Command{
		Use:          "newart",
		Short:        "Generate unique trait-based image collections and their metadata",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "Path to a config file (yaml, json, toml or env)")
	root.PersistentFlags().BoolVarP(&c.debug, "debug", "d", false, "Enable debug output")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return c.initialize()
	}

	root.AddCommand(
		serveCommand(c),
		generateCommand(c),
		rewriteCommand(c),
	)
	return root
}

// initialize loads configuration after flags are parsed and installs the logger.
func (c *cli) initialize() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	cfg, err := config.FromViper(c.v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg
	setupLogging(cfg.LogLevel, c.debug)
	return nil
}

func setupLogging(level string, debug bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// bindFlag ties a command flag to a config key so the flag wins over env and file.
func (c *cli) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := c.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}
