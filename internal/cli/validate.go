// internal/cli/validate.go
package ragbench

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/ragbench/internal/appconfig"
	"github.com/mwiater/ragbench/internal/strategy"
	"github.com/mwiater/ragbench/internal/testset"
)

var okLabel = color.New(color.FgGreen).SprintFunc()

// validateCmd checks the testset and strategy files without touching the
// backend.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the testset and strategy files without calling the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("configuration not loaded")
		}

		// Strict check of the config file itself: run requires backendUrl,
		// so validate should flag its absence before anything is executed.
		if path := viper.ConfigFileUsed(); path != "" {
			if _, err := os.Stat(path); err == nil {
				if _, err := appconfig.Load(path); err != nil {
					return fmt.Errorf("config %s: %w", path, err)
				}
				fmt.Printf("%s %s: config loads\n", okLabel("ok"), path)
			}
		}

		cases, err := testset.Load(cfg.TestsetFile())
		if err != nil {
			return fmt.Errorf("testset %s: %w", cfg.TestsetFile(), err)
		}
		fmt.Printf("%s %s: %d test cases\n", okLabel("ok"), cfg.TestsetFile(), len(cases))

		strategies, err := strategy.Load(cfg.StrategiesFile())
		if err != nil {
			return fmt.Errorf("strategies %s: %w", cfg.StrategiesFile(), err)
		}
		enabled := strategy.Enabled(strategies)
		fmt.Printf("%s %s: %d strategies, %d enabled\n", okLabel("ok"), cfg.StrategiesFile(), len(strategies), len(enabled))

		fmt.Printf("%d pairs would run\n", len(cases)*len(enabled))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
