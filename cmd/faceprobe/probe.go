package main

import (
	cli "github.com/spf13/cobra"

	"github.com/anarcoiris/FaceGUI/internal/usecase"
)

func newProbeCmd(a *app) *cli.Command {
	cmd := &cli.Command{
		Use:   "probe",
		Short: "Report which Face features the resource supports",
		Long:  "Runs the capability probe and prints the report. Unsupported features are reported, not treated as failures.",
		RunE: func(cmd *cli.Command, args []string) error {
			testURL, _ := cmd.Flags().GetString("test-url")
			fallbackURL, _ := cmd.Flags().GetString("fallback-url")
			attrs, _ := cmd.Flags().GetStringSlice("attributes")

			opts := usecase.ProbeOptions{
				TestImageURL: a.cfg.Face.ProbeTestURL,
				FallbackURL:  a.cfg.Face.ProbeFallbackURL,
				Attributes:   attrs,
			}
			if testURL != "" {
				opts.TestImageURL = testURL
			}
			if fallbackURL != "" {
				opts.FallbackURL = fallbackURL
			}

			report := usecase.NewProber(a.faces, a.logger).Probe(cmd.Context(), a.faceConfig(), opts)
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().String("test-url", "", "URL of an image containing a face")
	cmd.Flags().String("fallback-url", "", "URL tried when the first detection fails")
	cmd.Flags().StringSlice("attributes", nil, "Attributes to request in the attribute check")
	return cmd
}
