package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fmueller/whisperd/internal/logging"
	"github.com/fmueller/whisperd/internal/platform"
	"github.com/fmueller/whisperd/internal/server"
	"github.com/fmueller/whisperd/internal/transcribe"
	"github.com/fmueller/whisperd/internal/version"
	"github.com/fmueller/whisperd/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const (
	engineBundled = "bundled"
	engineOpenAI  = "openai"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	envFile    string

	engine        string
	openAIBaseURL string
	openAIModel   string
	model         string
	modelDir      string
	autoDownload  bool
	language      string
	scratchDir    string
	ffmpeg        string
	silenceGate   bool
	silenceDBFS   float64

	addr            string
	maxUploadBytes  int64
	maxMemory       int64
	corsOrigins     []string
	shutdownTimeout time.Duration

	logger *zap.Logger

	// lookupEnv reads the process environment; env layers the --env-file on top.
	lookupEnv func(string) (string, bool)
	env       func(string) (string, bool)

	engineFn     func(ctx context.Context) (whisper.Engine, error)
	transcribeFn func(ctx context.Context, audioPath string) (transcribe.Result, error)
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newAppState() *appState {
	app := &appState{
		envFile:         defaultEnvFile,
		engine:          engineBundled,
		model:           whisper.DefaultModel,
		language:        "auto",
		autoDownload:    true,
		ffmpeg:          "ffmpeg",
		silenceDBFS:     -65,
		addr:            "127.0.0.1:5000",
		maxUploadBytes:  server.DefaultMaxUploadBytes,
		maxMemory:       server.DefaultMaxMemory,
		corsOrigins:     []string{"*"},
		shutdownTimeout: server.DefaultShutdownTimeout,
		lookupEnv:       os.LookupEnv,
	}
	app.engineFn = app.buildEngine
	app.transcribeFn = app.transcribeFile
	return app
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "whisperd",
		Short:         "Serve whisper speech-to-text over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.prepare(cmd)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindEngineFlags(cmd, app)
	bindPipelineFlags(cmd, app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	flags.BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	flags.BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	flags.StringVar(&app.envFile, "env-file", app.envFile, "Dotenv file with WHISPERD_* settings; ignored when the default is missing")
}

func bindEngineFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&app.engine, "engine", app.engine, "Transcription engine: bundled|openai")
	flags.StringVar(&app.openAIBaseURL, "openai-base-url", app.openAIBaseURL, "Base URL of an OpenAI-compatible transcription API (openai engine)")
	flags.StringVar(&app.openAIModel, "openai-model", app.openAIModel, "Remote model name (openai engine), default whisper-1")
	flags.StringVar(&app.model, "model", app.model, "Model name or model file path")
	flags.StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
	flags.BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing models")
	flags.StringVar(&app.language, "language", app.language, "Language code (auto|en|de|...) for transcription")
}

func bindPipelineFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&app.scratchDir, "scratch-dir", app.scratchDir, "Directory for per-request scratch files (default: system temp dir)")
	flags.StringVar(&app.ffmpeg, "ffmpeg", app.ffmpeg, "ffmpeg executable used to normalize non-WAV uploads")
	flags.BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Detect near-silent WAV audio and skip transcription")
	flags.Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

func (a *appState) prepare(cmd *cobra.Command) error {
	env, err := a.loadEnv(cmd.Flags())
	if err != nil {
		return err
	}
	a.env = env

	if err := applyEnvOverrides(cmd.Flags(), env); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Verbose: a.verbose, JSON: a.jsonLogs})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return "", err
	}
	if err := platform.EnsureDir(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) getenv(key string) string {
	lookup := a.env
	if lookup == nil {
		lookup = a.lookupEnv
	}
	if lookup == nil {
		return ""
	}
	v, _ := lookup(key)
	return v
}
