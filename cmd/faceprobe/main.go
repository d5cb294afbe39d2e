// Command faceprobe checks and drives a Face resource from the shell.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log"

	cli "github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anarcoiris/FaceGUI/internal/clients"
	"github.com/anarcoiris/FaceGUI/internal/config"
	"github.com/anarcoiris/FaceGUI/internal/logging"
	"github.com/anarcoiris/FaceGUI/internal/usecase"
)

type app struct {
	cfg    *config.Config
	logger *zap.Logger
	faces  *usecase.FaceUseCase
}

func newRootCmd() *cli.Command {
	a := &app{}
	rootCmd := &cli.Command{
		Use:           "faceprobe",
		Short:         "Probe and operate an Azure Face resource",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cli.Command, args []string) error {
			return a.init(cmd)
		},
	}
	rootCmd.PersistentFlags().String("endpoint", "", "Face endpoint, overrides FACE_ENDPOINT")
	rootCmd.PersistentFlags().String("auth-mode", "", "ApiKey or ManagedIdentity, overrides FACE_AUTH_MODE")
	rootCmd.PersistentFlags().String("key", "", "Subscription key, overrides FACE_KEY")
	rootCmd.PersistentFlags().String("log-level", "", "Log level, overrides LOG_LEVEL")

	rootCmd.AddCommand(newProbeCmd(a), newDetectCmd(a), newGroupsCmd(a), newTokenCmd(a))
	return rootCmd
}

func (a *app) init(cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("endpoint"); v != "" {
		cfg.Face.Endpoint = v
	}
	if v, _ := flags.GetString("auth-mode"); v != "" {
		cfg.Face.AuthMode = v
	}
	if v, _ := flags.GetString("key"); v != "" {
		cfg.Face.Key = v
	}
	level := cfg.LogLevel
	if v, _ := flags.GetString("log-level"); v != "" {
		level = v
	}

	// Logs go to stderr so stdout stays valid JSON.
	logger, err := logging.NewLogger(level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.faces = usecase.NewFaceUseCase(
		clients.NewFactory(clients.WithLogger(logger)),
		logger,
		usecase.WithTrainPollInterval(cfg.Face.TrainPollInterval),
	)
	return nil
}

func (a *app) faceConfig() clients.Configuration {
	return a.cfg.FaceConfiguration()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalln("ERROR:", err)
	}
}
