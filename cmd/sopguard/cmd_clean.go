package main

import (
	"github.com/spf13/cobra"

	"sopguard/internal/clean"
	"sopguard/internal/format"
	"sopguard/internal/metrics"
	"sopguard/internal/sop"
)

var cleanFlags struct {
	file   string
	output string
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Deduplicate, repair and validate deviations",
	Long: "Clean runs the cleaning stages configured under 'cleaning' and reports the\n" +
		"data quality. With -o the cleaned deviations go to the file and the report\n" +
		"to stdout; otherwise a JSON document with both is printed.",
	RunE: runClean,
}

func init() {
	f := cleanCmd.Flags()
	f.StringVarP(&cleanFlags.file, "file", "f", "", "Deviations file, JSON (required)")
	f.StringVarP(&cleanFlags.output, "output", "o", "", "Write cleaned deviations here")

	_ = cleanCmd.MarkFlagRequired("file")
}

func runClean(cmd *cobra.Command, _ []string) error {
	devs, err := readDeviations(cleanFlags.file)
	if err != nil {
		return err
	}
	rec := app.rec
	rec.CountDeviations(metrics.StageInput, len(devs))
	stop := rec.StageTimer("clean")
	cleaned, rep := clean.Clean(devs, app.cfg.Cleaning)
	stop()
	q := clean.QualityScore(rep)
	rec.CountDeviations(metrics.StageCleaned, len(cleaned))
	rec.CountRemoved(metrics.RemovedDuplicate, rep.DuplicatesRemoved)
	rec.CountRemoved(metrics.RemovedValidation, rep.ValidationDropped)
	rec.SetQuality(q.Score)

	if cleanFlags.output == "" {
		return writeJSON(cmd.OutOrStdout(), struct {
			Cleaned []sop.Deviation `json:"cleaned_deviations"`
			Report  clean.Report    `json:"cleaning_report"`
			Quality clean.Quality   `json:"data_quality"`
		}{cleaned, rep, q})
	}
	if err := writeJSONTo(cmd.OutOrStdout(), cleanFlags.output, cleaned); err != nil {
		return err
	}
	renderCleaning(cmd.OutOrStdout(), format.ASCII, rep, q)
	return nil
}
