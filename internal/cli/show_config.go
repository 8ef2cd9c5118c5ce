// internal/cli/show_config.go
package ragbench

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/ragbench/internal/appconfig"
)

// showConfigCmd prints the merged configuration, proving that the JSON
// config loads properly and flags override it accordingly.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overriden by flags accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		appconfig.ShowConfig(os.Stdout, viper.ConfigFileUsed(), GetConfig())
	},
}

func init() {
	showCmd.AddCommand(showConfigCmd)
}
