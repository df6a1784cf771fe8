package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sopguard/internal/detect"
	"sopguard/internal/logging"
	"sopguard/internal/metrics"
)

var detectFlags struct {
	logsPath  string
	rulesPath string
	output    string
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Check workflow logs against SOP rules and emit raw deviations",
	RunE:  runDetect,
}

func init() {
	f := detectCmd.Flags()
	f.StringVar(&detectFlags.logsPath, "logs", "", "Workflow log file, JSON (required)")
	f.StringVar(&detectFlags.rulesPath, "rules", "", "SOP rules file, JSON or YAML (required)")
	f.StringVarP(&detectFlags.output, "output", "o", "", "Write deviations here (default stdout)")

	_ = detectCmd.MarkFlagRequired("logs")
	_ = detectCmd.MarkFlagRequired("rules")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	logs, err := readLogs(detectFlags.logsPath)
	if err != nil {
		return err
	}
	rules, err := readRules(detectFlags.rulesPath)
	if err != nil {
		return err
	}

	devs := detect.Detect(logs, rules)
	app.rec.CountDeviations(metrics.StageDetected, len(devs))
	if err := writeJSONTo(cmd.OutOrStdout(), detectFlags.output, devs); err != nil {
		return err
	}
	if detectFlags.output != "" {
		logging.New("cli").Info("deviations written", "path", detectFlags.output, "count", len(devs))
		fmt.Fprintf(cmd.ErrOrStderr(), "%d deviations from %d log entries written to %s\n",
			len(devs), len(logs), detectFlags.output)
	}
	return nil
}
