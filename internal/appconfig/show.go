package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	if cfg == nil {
		cfg = &Config{}
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Backend URL:    %s\n", cfg.BackendURL)
	fmt.Fprintf(out, "  Testset:        %s\n", cfg.TestsetFile())
	fmt.Fprintf(out, "  Strategies:     %s\n", cfg.StrategiesFile())
	fmt.Fprintf(out, "  Output dir:     %s\n", cfg.OutputDir())
	fmt.Fprintf(out, "  Log file:       %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Concurrency:    %d\n", cfg.WorkerCount())
	fmt.Fprintf(out, "  Retries:        %d\n", cfg.RetryCount())
	fmt.Fprintf(out, "  Timeout:        %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Deadline:       %s\n", cfg.RunDeadline())
	fmt.Fprintf(out, "  Request delay:  %s\n", cfg.RequestDelay())
	fmt.Fprintf(out, "  RRF k:          %d\n", cfg.FusionK())
	fmt.Fprintf(out, "  Primary metric: %s\n", cfg.PrimaryMetric)
	fmt.Fprintf(out, "  Progress:       %v\n", cfg.Progress)
	fmt.Fprintf(out, "  Debug:          %v\n", cfg.Debug)
}
