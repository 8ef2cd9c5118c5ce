// internal/cli/run.go
package ragbench

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/k0kubun/pp"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mwiater/ragbench/internal/appconfig"
	"github.com/mwiater/ragbench/internal/gateway"
	"github.com/mwiater/ragbench/internal/harness"
	"github.com/mwiater/ragbench/internal/logging"
	"github.com/mwiater/ragbench/internal/metrics"
	"github.com/mwiater/ragbench/internal/results"
	"github.com/mwiater/ragbench/internal/scorer"
	"github.com/mwiater/ragbench/internal/strategy"
	"github.com/mwiater/ragbench/internal/testset"
	"github.com/mwiater/ragbench/internal/tui"
	"github.com/mwiater/ragbench/internal/util"
)

var warnLabel = color.New(color.FgYellow).SprintFunc()

// runCmd executes the full evaluation matrix and writes the run artifacts.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every test case against every enabled strategy and compare the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvaluation(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEvaluation(cmd *cobra.Command) error {
	cfg := GetConfig()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	if strings.TrimSpace(cfg.BackendURL) == "" {
		return errors.New("no backend URL configured: set backendUrl in the config file or pass --backendUrl")
	}

	if err := logging.Init(cfg.LogFilePath()); err != nil {
		return err
	}
	defer logging.Close()

	if cfg.Debug {
		pp.Println(cfg)
	}

	cases, err := testset.Load(cfg.TestsetFile())
	if err != nil {
		return err
	}
	strategies, err := strategy.Load(cfg.StrategiesFile())
	if err != nil {
		return err
	}
	enabled := strategy.Enabled(strategies)
	totalPairs := len(cases) * len(enabled)

	gw := gateway.NewHTTPGateway(cfg.BackendURL, cfg.RequestTimeout(), cfg.Debug)
	if !gw.Healthy(cmd.Context()) {
		// A failing health check is a warning, not a stop: the run itself
		// will record per-pair failures if the backend is really down.
		fmt.Println(warnLabel("warning:"), "backend health check failed for", cfg.BackendURL)
		logging.LogEvent("Health check failed for %s", cfg.BackendURL)
	}

	opts := harness.Options{
		Workers:  cfg.WorkerCount(),
		Retries:  cfg.RetryCount(),
		Delay:    cfg.RequestDelay(),
		Deadline: cfg.RunDeadline(),
		FusionK:  cfg.FusionK(),
	}

	var events chan harness.Event
	uiDone := make(chan error, 1)
	if cfg.Progress {
		events = make(chan harness.Event, util.Max(4*totalPairs, 64))
		opts.Events = events
		if progressWanted(cfg) {
			go func() {
				uiDone <- tui.RunProgress(totalPairs, events)
			}()
		} else {
			go func() {
				uiDone <- logProgress(os.Stdout, totalPairs, events)
			}()
		}
	}

	store := results.NewStore()
	h := harness.New(gw, scorer.NewLexical(), store, opts)
	summary, runErr := h.Run(cmd.Context(), cases, strategies)

	if events != nil {
		close(events)
		if err := <-uiDone; err != nil {
			logging.LogEvent("Progress view error: %v", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, harness.ErrAllPairsFailed) {
		// Configuration problems abort before any pair runs.
		return runErr
	}

	retrievals, scores := store.Snapshot()
	rows := metrics.Aggregate(retrievals, scores, cfg.PrimaryMetric)
	if err := metrics.WriteArtifacts(cfg.OutputDir(), retrievals, scores, rows); err != nil {
		return err
	}

	fmt.Println()
	metrics.PrintComparison(os.Stdout, rows, metrics.PrimaryMetric(rows, cfg.PrimaryMetric))
	fmt.Printf("\n%d pairs: %d done, %d failed, %d scoring failures. Artifacts in %s\n",
		summary.Total, summary.Done, summary.Failed, summary.ScoringFailures, cfg.OutputDir())

	return runErr
}

// progressWanted gates the live view: opted in via --progress and stdout is a
// real terminal. Piped or redirected output falls back to plain lines.
func progressWanted(cfg *appconfig.Config) bool {
	return cfg.Progress && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
}

// logProgress is the non-terminal rendering of --progress: one line per pair
// that reaches a terminal state.
func logProgress(w io.Writer, total int, events <-chan harness.Event) error {
	finished := 0
	for ev := range events {
		if !ev.Terminal() {
			continue
		}
		finished++
		if ev.State == harness.StateFailed {
			fmt.Fprintf(w, "[%d/%d] %s / %s failed: %s\n", finished, total, ev.StrategyName, ev.TestCaseID, ev.ErrorKind)
			continue
		}
		fmt.Fprintf(w, "[%d/%d] %s / %s done\n", finished, total, ev.StrategyName, ev.TestCaseID)
	}
	return nil
}
