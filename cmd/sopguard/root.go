// sopguard detects SOP deviations in workflow logs and reduces them to a
// representative, statistically profiled sample for review.
//
// Usage:
//
//	sopguard detect --logs <logs.json> --rules <rules.yaml> -o <deviations.json>
//	sopguard clean -f <deviations.json> [-o <cleaned.json>]
//	sopguard stats -f <deviations.json> [--markdown]
//	sopguard analyze -f <deviations.json> [-o <result.json>] [--report] [--prompt]
//	sopguard sample -f <deviations.json> [-o <sample.json>] [--context]
//	sopguard profile --logs <logs.json> [-f <deviations.json>] [--officer <id>]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sopguard/internal/config"
	"sopguard/internal/logging"
	"sopguard/internal/metrics"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
}

// app is the per-invocation state built in PersistentPreRunE.
var app struct {
	cfg *config.Config
	rec *metrics.Recorder
}

var rootCmd = &cobra.Command{
	Use:   "sopguard",
	Short: "SOP deviation detection and intelligent sampling",
	Long: "sopguard checks workflow logs against SOP rules, cleans and profiles the\n" +
		"resulting deviations, and selects a representative sample using clustering\n" +
		"and anomaly detection.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE:  setup,
	PersistentPostRunE: flushMetrics,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configPath, "config", "", "Config file (YAML or JSON)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json (overrides config)")
	pf.StringVar(&rootFlags.metricsFile, "metrics-file", "", "Write prometheus metrics to this textfile on exit")

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromPath(rootFlags.configPath)
	if err != nil {
		return err
	}
	if rootFlags.logLevel != "" {
		cfg.Logging.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		cfg.Logging.Format = rootFlags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	// logs go to stderr so JSON on stdout stays parseable
	logging.Init(level, cfg.Logging.Format, cmd.ErrOrStderr())

	app.cfg = cfg
	app.rec = nil
	if rootFlags.metricsFile != "" {
		app.rec = metrics.NewRecorder()
	}
	return nil
}

func flushMetrics(_ *cobra.Command, _ []string) error {
	if app.rec == nil {
		return nil
	}
	if err := app.rec.WriteToTextfile(rootFlags.metricsFile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
