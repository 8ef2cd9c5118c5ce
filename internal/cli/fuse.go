// internal/cli/fuse.go
package ragbench

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwiater/ragbench/internal/fusion"
)

// fuseInput is the JSON shape the fuse command reads: ranked document lists
// with their weights, plus optional k and topK overrides.
type fuseInput struct {
	K     int `json:"k,omitempty"`
	TopK  int `json:"topK,omitempty"`
	Lists []struct {
		Docs   []string `json:"docs"`
		Weight float64  `json:"weight"`
	} `json:"lists"`
}

// fuseCmd fuses ranked lists from a file or stdin and prints the merged
// ranking, for inspecting fusion behavior outside a run.
var fuseCmd = &cobra.Command{
	Use:   "fuse [file]",
	Short: "Fuse ranked document lists with weighted reciprocal rank fusion",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := io.Reader(os.Stdin)
		if len(args) == 1 {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			reader = file
		}

		var input fuseInput
		if err := json.NewDecoder(reader).Decode(&input); err != nil {
			return fmt.Errorf("could not parse fusion input: %w", err)
		}
		if input.K <= 0 {
			input.K = fusion.DefaultK
		}
		if input.TopK <= 0 {
			input.TopK = 10
		}

		lists := make([]fusion.RankedList, 0, len(input.Lists))
		for _, list := range input.Lists {
			lists = append(lists, fusion.RankedList{Docs: list.Docs, Weight: list.Weight})
		}

		fused, err := fusion.Fuse(lists, input.K, input.TopK)
		if err != nil {
			return err
		}
		for rank, doc := range fused {
			fmt.Printf("%3d  %s\n", rank+1, doc)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fuseCmd)
}
