package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fmueller/whisperd/internal/audio"
	"github.com/fmueller/whisperd/internal/server"
	"github.com/fmueller/whisperd/internal/transcribe"
	"github.com/fmueller/whisperd/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the transcription HTTP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&app.addr, "addr", app.addr, "Listen address")
	flags.Int64Var(&app.maxUploadBytes, "max-upload-bytes", app.maxUploadBytes, "Maximum request body size in bytes")
	flags.Int64Var(&app.maxMemory, "max-memory", app.maxMemory, "Multipart bytes kept in memory before spilling to disk")
	flags.StringSliceVar(&app.corsOrigins, "cors-origins", app.corsOrigins, "Allowed CORS origins; * allows any")
	flags.DurationVar(&app.shutdownTimeout, "shutdown-timeout", app.shutdownTimeout, "Grace period for in-flight requests on shutdown")

	return cmd
}

func (a *appState) runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := a.buildService(ctx)
	if err != nil {
		return err
	}

	handler := server.NewRouter(svc, server.Options{
		MaxUploadBytes: a.maxUploadBytes,
		MaxMemory:      a.maxMemory,
		CORSOrigins:    a.corsOrigins,
	}, a.log())

	return server.New(a.addr, handler, a.shutdownTimeout, a.log()).ListenAndServe(ctx)
}

// buildService loads the engine once; every request shares it.
func (a *appState) buildService(ctx context.Context) (*transcribe.Service, error) {
	engineFn := a.engineFn
	if engineFn == nil {
		engineFn = a.buildEngine
	}
	engine, err := engineFn(ctx)
	if err != nil {
		return nil, err
	}

	transcoder := audio.NewTranscoder(a.ffmpeg, a.log())
	if !transcoder.Available() {
		a.log().Warn("ffmpeg not found; non-WAV uploads are passed to the engine unchanged", zap.String("ffmpeg", a.ffmpeg))
	}

	svc, err := transcribe.NewService(engine, transcoder, transcribe.Config{
		ScratchDir:  a.scratchDir,
		Language:    a.language,
		SilenceGate: a.silenceGate,
		SilenceDBFS: a.silenceDBFS,
	}, a.log())
	if err != nil {
		return nil, err
	}

	a.log().Info("transcription engine ready", zap.String("engine", engine.Name()), zap.String("language", a.language))
	return svc, nil
}

func (a *appState) buildEngine(ctx context.Context) (whisper.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(a.engine)) {
	case engineBundled:
		modelDir, err := a.modelStorageDir()
		if err != nil {
			return nil, err
		}
		model, err := whisper.EnsureModel(ctx, a.model, modelDir, whisper.EnsureOptions{
			AutoDownload: a.autoDownload,
			NoProgress:   !a.progressEnabled(),
			Logger:       a.log(),
		})
		if err != nil {
			return nil, err
		}
		engine, err := whisper.NewBundledEngine(model.Path, a.log())
		if err != nil {
			return nil, err
		}
		return engine, nil
	case engineOpenAI:
		return whisper.NewOpenAIEngine(whisper.OpenAIConfig{
			APIKey:  a.getenv("OPENAI_API_KEY"),
			BaseURL: a.openAIBaseURL,
			Model:   a.openAIModel,
		}, a.log()), nil
	default:
		return nil, fmt.Errorf("unknown engine %q; use %s or %s", a.engine, engineBundled, engineOpenAI)
	}
}
