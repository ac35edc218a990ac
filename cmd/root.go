package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ace221390/work.ink/internal/config"
	"github.com/ace221390/work.ink/internal/observability"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "workink",
	Short:         "Walks work.ink link gates in a Chromium browser.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Initialize configuration loading (Viper)
		if err := initializeConfig(viper.GetViper()); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		// 2. Unmarshal into the singleton
		if err := config.Load(viper.GetViper()); err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "workink"})
			return err
		}
		cfg := config.Get()

		// 3. Validate the configuration
		if err := cfg.Validate(); err != nil {
			observability.InitializeLogger(cfg.Logger)
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// 4. Initialize the logger
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Configuration loaded", zap.String("version", Version))
		return nil
	},
}

// Execute adds all child commands to the root command and runs it with ctx,
// which main cancels on interrupt.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Cancellation during shutdown is not a failure.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(newRunCmd(NewComponentFactory()))
	rootCmd.AddCommand(newOpenCmd(NewComponentFactory()))
	rootCmd.AddCommand(newPendingCmd())
	rootCmd.AddCommand(versionCmd)
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(v *viper.Viper) error {
	// Set default values so the app can run with a minimal config.
	config.SetDefaults(v)

	// 1. Set up config file search paths
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// 2. Environment Variable Configuration
	v.SetEnvPrefix("WORKINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("store.postgres.url", "WORKINK_DATABASE_URL", "WORKINK_STORE_POSTGRES_URL")
	_ = v.BindEnv("events.nats_url", "NATS_URL", "WORKINK_EVENTS_NATS_URL")

	// 3. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; parse errors are not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
