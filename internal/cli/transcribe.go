package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fmueller/whisperd/internal/transcribe"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeFile
			}

			res, err := transcribeFn(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			if strings.TrimSpace(res.Text) == "" {
				app.log().Warn("no speech detected", zap.String("audio", args[0]))
			}
			return nil
		},
	}
	return cmd
}

// transcribeFile runs a local file through the same service the HTTP endpoint uses.
func (a *appState) transcribeFile(ctx context.Context, audioPath string) (transcribe.Result, error) {
	audioPath = filepath.Clean(audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return transcribe.Result{}, fmt.Errorf("audio file not found: %w", err)
	}

	svc, err := a.buildService(ctx)
	if err != nil {
		return transcribe.Result{}, err
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	res, err := svc.Transcribe(ctx, transcribe.Upload{Filename: filepath.Base(audioPath), Body: f})
	stopSpinner()
	if err != nil {
		return transcribe.Result{}, err
	}
	return res, nil
}
