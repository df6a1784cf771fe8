package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sopguard/internal/clean"
	"sopguard/internal/format"
	"sopguard/internal/metrics"
	"sopguard/internal/ml"
)

var sampleFlags struct {
	file    string
	output  string
	target  int
	context bool
	summary bool
	raw     bool
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Select a representative sample with clustering and anomaly detection",
	RunE:  runSample,
}

func init() {
	f := sampleCmd.Flags()
	f.StringVarP(&sampleFlags.file, "file", "f", "", "Deviations file, JSON (required)")
	f.StringVarP(&sampleFlags.output, "output", "o", "", "Write selected deviations and ML metadata here")
	f.IntVar(&sampleFlags.target, "target", 0, "Target sample size (overrides config)")
	f.BoolVar(&sampleFlags.context, "context", false, "Print the ML context text instead of JSON")
	f.BoolVar(&sampleFlags.summary, "summary", false, "Print cluster and sampling tables")
	f.BoolVar(&sampleFlags.raw, "raw", false, "Skip cleaning; sample the input as given")

	_ = sampleCmd.MarkFlagRequired("file")
}

func runSample(cmd *cobra.Command, _ []string) error {
	devs, err := readDeviations(sampleFlags.file)
	if err != nil {
		return err
	}
	if !sampleFlags.raw {
		devs, _ = clean.Clean(devs, app.cfg.Cleaning)
	}
	cfg := app.cfg.MLPipeline()
	if sampleFlags.target > 0 {
		cfg.TargetSampleSize = sampleFlags.target
	}

	stop := app.rec.StageTimer("ml")
	res := ml.New(cfg).Run(devs)
	stop()
	if meta := res.Metadata; meta.MLApplied {
		clusters, anomalies := 0, 0
		if meta.Clustering != nil {
			clusters = meta.Clustering.NClusters
		}
		if meta.Anomaly != nil {
			anomalies = meta.Anomaly.NAnomalies
		}
		app.rec.RecordRun(true, clusters, anomalies)
	} else {
		app.rec.RecordRun(false, 0, 0)
	}
	app.rec.CountDeviations(metrics.StageSelected, len(res.Selected))

	stdout := cmd.OutOrStdout()
	switch {
	case sampleFlags.context:
		text := ml.ContextText(res.Metadata)
		if text == "" {
			text = fmt.Sprintf("ML not applied (%s); all %d deviations kept.", res.Metadata.Reason, len(res.Selected))
		}
		fmt.Fprintln(stdout, text)
	case sampleFlags.summary:
		renderML(stdout, format.ASCII, &res.Metadata)
	}
	if sampleFlags.output == "" && (sampleFlags.context || sampleFlags.summary) {
		return nil
	}
	return writeJSONTo(stdout, sampleFlags.output, res)
}
