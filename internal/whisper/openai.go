package whisper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type OpenAIConfig struct {
	APIKey string
	// BaseURL points at any OpenAI-compatible server, e.g. a whisper.cpp server
	// started with --inference-path /v1/audio/transcriptions.
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OpenAIEngine delegates decoding to a remote OpenAI-compatible transcription endpoint.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIEngine(cfg OpenAIConfig, logger *zap.Logger) *OpenAIEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}

	return &OpenAIEngine{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

func (e *OpenAIEngine) Name() string {
	return "openai:" + e.model
}

func (e *OpenAIEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (Transcription, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Transcription{}, errors.New("audio path is required")
	}

	audioReq := openai.AudioRequest{
		Model:    e.model,
		FilePath: req.AudioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if !autoLanguage(req.Language) {
		audioReq.Language = req.Language
	}

	e.logger.Debug("sending audio to transcription endpoint", zap.String("model", e.model), zap.String("audio", req.AudioPath))
	resp, err := e.client.CreateTranscription(ctx, audioReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return Transcription{}, fmt.Errorf("transcription endpoint rejected audio (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return Transcription{}, fmt.Errorf("transcription request: %w", err)
	}

	result := Transcription{
		Text:     normalizeTranscript(resp.Text),
		Language: strings.ToLower(resp.Language),
	}
	if result.Language == "" && !autoLanguage(req.Language) {
		result.Language = req.Language
	}
	return result, nil
}
