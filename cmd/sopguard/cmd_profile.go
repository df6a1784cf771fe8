package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sopguard/internal/format"
	"sopguard/internal/profile"
	"sopguard/internal/sop"
)

var profileFlags struct {
	logsPath string
	file     string
	officer  string
	json     bool
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Summarize officer workload and deviation risk",
	RunE:  runProfile,
}

func init() {
	f := profileCmd.Flags()
	f.StringVar(&profileFlags.logsPath, "logs", "", "Workflow log file, JSON (required)")
	f.StringVarP(&profileFlags.file, "file", "f", "", "Deviations file, JSON")
	f.StringVar(&profileFlags.officer, "officer", "", "Profile only this officer")
	f.BoolVar(&profileFlags.json, "json", false, "Print profiles as JSON")

	_ = profileCmd.MarkFlagRequired("logs")
}

func runProfile(cmd *cobra.Command, _ []string) error {
	logs, err := readLogs(profileFlags.logsPath)
	if err != nil {
		return err
	}
	var devs []sop.Deviation
	if profileFlags.file != "" {
		if devs, err = readDeviations(profileFlags.file); err != nil {
			return err
		}
	}

	var profiles []profile.Profile
	if profileFlags.officer != "" {
		p := profile.Build(profileFlags.officer, logs, devs)
		if p.TotalCases == 0 && p.DeviationCount == 0 {
			return fmt.Errorf("officer %q not found in logs or deviations", profileFlags.officer)
		}
		profiles = []profile.Profile{p}
	} else {
		profiles = profile.BuildAll(logs, devs)
	}

	if profileFlags.json {
		return writeJSON(cmd.OutOrStdout(), profiles)
	}
	renderProfiles(cmd.OutOrStdout(), format.ASCII, profiles)
	return nil
}
