package main

import (
	"github.com/spf13/cobra"

	"sopguard/internal/clean"
	"sopguard/internal/format"
	"sopguard/internal/stats"
)

var statsFlags struct {
	file     string
	markdown bool
	json     bool
	raw      bool
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the statistical profile of a deviation set",
	RunE:  runStats,
}

func init() {
	f := statsCmd.Flags()
	f.StringVarP(&statsFlags.file, "file", "f", "", "Deviations file, JSON (required)")
	f.BoolVar(&statsFlags.markdown, "markdown", false, "Render tables as Markdown")
	f.BoolVar(&statsFlags.json, "json", false, "Print the summary as JSON")
	f.BoolVar(&statsFlags.raw, "raw", false, "Skip cleaning; profile the input as given")

	_ = statsCmd.MarkFlagRequired("file")
	statsCmd.MarkFlagsMutuallyExclusive("markdown", "json")
}

func runStats(cmd *cobra.Command, _ []string) error {
	devs, err := readDeviations(statsFlags.file)
	if err != nil {
		return err
	}
	if !statsFlags.raw {
		devs, _ = clean.Clean(devs, app.cfg.Cleaning)
	}
	stop := app.rec.StageTimer("stats")
	summary := stats.Analyze(devs)
	stop()

	out := cmd.OutOrStdout()
	if statsFlags.json {
		return writeJSON(out, summary)
	}
	mode := format.ASCII
	if statsFlags.markdown {
		mode = format.Markdown
	}
	renderStats(out, mode, summary)
	return nil
}
