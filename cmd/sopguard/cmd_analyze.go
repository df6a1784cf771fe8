package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sopguard/internal/analysis"
	"sopguard/internal/format"
	"sopguard/internal/logging"
	"sopguard/internal/narrative"
)

var analyzeFlags struct {
	file     string
	output   string
	report   bool
	markdown bool
	prompt   bool
	noML     bool
	narrator string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Clean, profile and sample a deviation set",
	Long: "Analyze runs cleaning, data-quality scoring, statistics and the ML sampling\n" +
		"stages. The JSON result goes to -o (or stdout). --report prints tables,\n" +
		"--prompt prints the context text handed to a narrator, and --narrator runs\n" +
		"an external command for pattern analysis of the selected deviations.",
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeFlags.file, "file", "f", "", "Deviations file, JSON (required)")
	f.StringVarP(&analyzeFlags.output, "output", "o", "", "Write the JSON result here")
	f.BoolVar(&analyzeFlags.report, "report", false, "Print a human-readable report")
	f.BoolVar(&analyzeFlags.markdown, "markdown", false, "Render the report as Markdown")
	f.BoolVar(&analyzeFlags.prompt, "prompt", false, "Print the statistical and ML context text")
	f.BoolVar(&analyzeFlags.noML, "no-ml", false, "Skip the ML stages")
	f.StringVar(&analyzeFlags.narrator, "narrator", "", "Command that answers narrator requests on stdin/stdout")

	_ = analyzeCmd.MarkFlagRequired("file")
}

// analyzeOutput is the JSON document written by analyze.
type analyzeOutput struct {
	*analysis.Result
	Narrative *narrative.Analysis `json:"narrative_analysis,omitempty"`
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := logging.New("cli")

	devs, err := readDeviations(analyzeFlags.file)
	if err != nil {
		return err
	}
	cfg := app.cfg.Analysis()
	cfg.Recorder = app.rec
	if analyzeFlags.noML {
		cfg.EnableML = false
	}

	res, err := analysis.Run(ctx, devs, cfg)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	out := analyzeOutput{Result: res}
	statsContext := narrative.StatisticalContext(res.StatisticalSummary)

	if analyzeFlags.narrator != "" {
		n, err := narrative.ParseCommand(analyzeFlags.narrator)
		if err != nil {
			return err
		}
		a, err := narrative.NewAnalyzer(n, app.cfg.Narrative, app.rec).
			Analyze(ctx, res.Selected, statsContext+"\n"+res.MLContext)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		out.Narrative = &a
		logger.Info("narrative analysis complete", "api_calls", a.APICallsMade)
	}

	stdout := cmd.OutOrStdout()
	if analyzeFlags.prompt {
		fmt.Fprintln(stdout, statsContext)
		if res.MLContext != "" {
			fmt.Fprintln(stdout, res.MLContext)
		}
	}
	if analyzeFlags.report {
		mode := format.ASCII
		if analyzeFlags.markdown {
			mode = format.Markdown
		}
		renderCleaning(stdout, mode, res.CleaningReport, res.DataQuality)
		renderStats(stdout, mode, res.StatisticalSummary)
		renderML(stdout, mode, res.ML)
		if out.Narrative != nil {
			renderNarrative(stdout, *out.Narrative)
		}
	}
	if analyzeFlags.output == "" && (analyzeFlags.report || analyzeFlags.prompt) {
		return nil
	}
	if err := writeJSONTo(stdout, analyzeFlags.output, out); err != nil {
		return err
	}
	if analyzeFlags.output != "" {
		logger.Info("analysis written", "path", analyzeFlags.output, "run_id", res.RunID,
			"selected", len(res.Selected), "of", len(devs))
	}
	return nil
}
