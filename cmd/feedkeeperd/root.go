package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GPTx-global/feedkeeper/oracle/config"
	"github.com/GPTx-global/feedkeeper/oracle/daemon"
	"github.com/GPTx-global/feedkeeper/oracle/log"
)

const (
	flagHome      = "home"
	flagConfig    = "config"
	flagSecrets   = "secrets"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
	flagLogToFile = "log-to-file"

	envPrefix = "FEEDKEEPER"
)

// NewRootCmd builds the feedkeeperd command tree. Flags can also be set through
// FEEDKEEPER_<FLAG> environment variables.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "feedkeeperd",
		Short:         "Keeps on-chain data feeds up to date with signed airnode data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String(flagHome, config.DefaultHome(), "home directory holding config, secrets and logs")
	flags.String(flagConfig, "", "config file (default <home>/"+config.DefaultConfigFile+")")
	flags.String(flagSecrets, "", "secrets file (default <home>/"+config.DefaultSecretsFile+")")
	flags.String(flagLogLevel, "", "log level, overrides the config file")
	flags.String(flagLogFormat, "", "log format (plain|json), overrides the config file")
	flags.Bool(flagLogToFile, false, "write logs to <home>/logs instead of the console")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(newStartCmd(v), newValidateCmd(v))

	return rootCmd
}

func newStartCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the fetch and update loops until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			log.AddFields("coordinator-id", uuid.NewString())
			cfg.Print()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			d, err := daemon.New(ctx, cfg)
			if err != nil {
				return err
			}

			if err := d.Start(); err != nil {
				d.Stop()
				return fmt.Errorf("failed to start daemon: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			sig := <-sigCh
			log.Infof("Received %s", sig)
			d.Stop()
			log.Sync()

			return nil
		},
	}
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			cfg.Print()
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
}

// loadConfig sets up logging and loads the configuration. Every failure maps to
// the invalid config exit code.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	home := v.GetString(flagHome)
	configPath := v.GetString(flagConfig)
	if configPath == "" {
		configPath = filepath.Join(home, config.DefaultConfigFile)
	}
	secretsPath := v.GetString(flagSecrets)
	if secretsPath == "" {
		secretsPath = filepath.Join(home, config.DefaultSecretsFile)
	}

	if err := log.InitLogger(v.GetString(flagLogLevel), v.GetString(flagLogFormat)); err != nil {
		return nil, &daemon.ExitError{Code: daemon.ExitCodeInvalidConfig, Err: err}
	}

	cfg, err := config.Load(home, configPath, secretsPath)
	if err != nil {
		return nil, &daemon.ExitError{Code: daemon.ExitCodeInvalidConfig, Err: err}
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if l := v.GetString(flagLogLevel); l != "" {
		level = l
	}
	if f := v.GetString(flagLogFormat); f != "" {
		format = f
	}

	if v.GetBool(flagLogToFile) {
		err = log.ResetLogger(home, level, format)
	} else {
		err = log.InitLogger(level, format)
	}
	if err != nil {
		return nil, &daemon.ExitError{Code: daemon.ExitCodeInvalidConfig, Err: err}
	}

	return cfg, nil
}
