// internal/cli/root.go
package ragbench

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/mwiater/ragbench/internal/appconfig"
	"github.com/mwiater/ragbench/internal/harness"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
)

var rootCmd = &cobra.Command{
	Use:           "ragbench",
	Short:         "ragbench — compare RAG retrieval strategies against a live backend",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1) Load config (file or defaults)
		if err := ensureConfigLoaded(); err != nil {
			return err
		}

		// 2) If user did NOT set a flag, copy the config value into the flag so
		//    both pflags and viper reflect the same, final value.
		for _, name := range []string{"debug", "progress"} {
			if !cmd.Flags().Changed(name) {
				val := viper.GetBool(name)
				_ = cmd.Flags().Set(name, strconv.FormatBool(val))
			}
		}

		// 3) Materialize the fully merged configuration into currentConfig
		//    (flags > config > defaults). This gives other packages a stable snapshot.
		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ConfigPath = viper.ConfigFileUsed()
		currentConfig = &cfg

		return nil
	},
}

// Execute runs the root command, mapping the terminal error to the process
// exit code: 1 for configuration problems, 2 when every pair failed.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, harness.ErrAllPairsFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// --config (defaults to your existing path)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().String("backendUrl", "", "base URL of the RAG backend under test")
	rootCmd.PersistentFlags().String("testset", "", "testset JSON file")
	rootCmd.PersistentFlags().String("strategies", "", "strategy configuration JSON file")
	rootCmd.PersistentFlags().String("out", "", "output directory for run artifacts")
	rootCmd.PersistentFlags().Int("concurrency", 0, "worker pool size")
	// -1 means "not set" so an explicit --retries 0 survives the merge.
	rootCmd.PersistentFlags().Int("retries", -1, "retry budget for transient gateway failures (0 disables retries)")
	rootCmd.PersistentFlags().Int("timeout", 0, "per-request timeout in seconds")
	rootCmd.PersistentFlags().Int("deadline", 0, "overall run deadline in seconds (0 = none)")
	rootCmd.PersistentFlags().Int("delayMs", 0, "pacing delay between gateway calls per worker")
	rootCmd.PersistentFlags().Int("rrfK", 0, "RRF smoothing constant for client-side fusion")
	rootCmd.PersistentFlags().String("primaryMetric", "", "metric used to rank strategies")
	rootCmd.PersistentFlags().Bool("progress", false, "show a live progress view during the run")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	// Bind flags to Viper keys (flags override config)
	for _, name := range []string{
		"backendUrl", "testset", "strategies", "out",
		"concurrency", "retries", "timeout", "deadline", "delayMs",
		"rrfK", "primaryMetric", "progress", "debug",
	} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// ensureConfigLoaded reads the config and sets safe defaults.
func ensureConfigLoaded() error {
	viper.SetDefault("debug", false)
	viper.SetDefault("progress", false)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No file: fine, we'll use defaults/flags
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// DebugEnabled reflects the merged Viper state.
func DebugEnabled() bool { return viper.GetBool("debug") }

// ProgressEnabled reflects the merged Viper state.
func ProgressEnabled() bool { return viper.GetBool("progress") }
