package main

import (
	"errors"
	"os"

	cli "github.com/spf13/cobra"

	"github.com/anarcoiris/FaceGUI/internal/usecase"
)

func newDetectCmd(a *app) *cli.Command {
	cmd := &cli.Command{
		Use:   "detect",
		Short: "Detect faces in an image file or URL",
		RunE: func(cmd *cli.Command, args []string) error {
			imageURL, _ := cmd.Flags().GetString("url")
			file, _ := cmd.Flags().GetString("file")
			attrs, _ := cmd.Flags().GetStringSlice("attributes")
			landmarks, _ := cmd.Flags().GetBool("landmarks")

			var src usecase.ImageSource
			switch {
			case imageURL != "" && file != "":
				return errors.New("use either --url or --file")
			case imageURL != "":
				src.URL = imageURL
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				src.Bytes = data
			default:
				return errors.New("--url or --file is required")
			}

			faces, err := a.faces.Detect(cmd.Context(), a.faceConfig(), src, usecase.DetectOptions{
				Attributes: attrs,
				Landmarks:  landmarks,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), faces)
		},
	}
	cmd.Flags().String("url", "", "Image URL")
	cmd.Flags().StringP("file", "f", "", "Image file")
	cmd.Flags().StringSlice("attributes", nil, "Attributes to return, e.g. age,glasses")
	cmd.Flags().Bool("landmarks", false, "Return face landmarks")
	return cmd
}
