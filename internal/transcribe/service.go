package transcribe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/whisperd/internal/audio"
	"github.com/fmueller/whisperd/internal/platform"
	"github.com/fmueller/whisperd/internal/whisper"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type Result struct {
	Text                string
	Language            string
	LanguageProbability float64
	Elapsed             time.Duration
}

// Normalizer turns an arbitrary audio container into WAV the model can read.
type Normalizer interface {
	Available() bool
	ToWAV(ctx context.Context, inputPath, outputPath string) error
}

type Config struct {
	ScratchDir  string
	Language    string
	SilenceGate bool
	SilenceDBFS float64
}

// Service runs one upload through the speech pipeline. It keeps no state between
// calls; the engine is shared and read-only.
type Service struct {
	engine     whisper.Engine
	normalizer Normalizer
	cfg        Config
	logger     *zap.Logger

	newID func() string
	now   func() time.Time
}

func NewService(engine whisper.Engine, normalizer Normalizer, cfg Config, logger *zap.Logger) (*Service, error) {
	if engine == nil {
		return nil, errors.New("transcription engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ScratchDir = platform.ResolveScratchDir(cfg.ScratchDir)
	if err := platform.EnsureDir(cfg.ScratchDir, 0o700); err != nil {
		return nil, fmt.Errorf("prepare scratch directory: %w", err)
	}
	cfg.Language = strings.ToLower(strings.TrimSpace(cfg.Language))
	if cfg.Language == "" {
		cfg.Language = "auto"
	}

	return &Service{
		engine:     engine,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
		newID:      uuid.NewString,
		now:        time.Now,
	}, nil
}

func (s *Service) Transcribe(ctx context.Context, up Upload) (Result, error) {
	if up.Body == nil {
		return Result{}, ErrMissingInput
	}
	started := s.now()

	body := bufio.NewReaderSize(up.Body, 512)
	head, _ := body.Peek(audio.SniffLen)
	format := s.detectFormat(head, up.Filename)

	scratch, size, err := s.persist(body, format.Ext)
	if err != nil {
		return Result{}, pipelineError("store upload", err)
	}
	defer s.remove(scratch)

	s.logger.Info("received audio file",
		zap.String("filename", up.Filename),
		zap.String("content_type", up.ContentType),
		zap.String("format", format.Name),
		zap.Int64("bytes", size),
	)

	if size == 0 {
		return Result{}, pipelineError("decode audio", ErrEmptyAudio)
	}

	input, isWAV, err := s.normalize(ctx, scratch, format)
	if err != nil {
		return Result{}, pipelineError("normalize audio", err)
	}
	if input != scratch {
		defer s.remove(input)
	}

	if isWAV && s.cfg.SilenceGate {
		if silent := s.silent(input); silent {
			return Result{Elapsed: s.now().Sub(started)}, nil
		}
	}

	out, err := s.engine.Transcribe(ctx, whisper.TranscriptionRequest{AudioPath: input, Language: s.cfg.Language})
	if err != nil {
		s.logger.Warn("transcription failed", zap.String("engine", s.engine.Name()), zap.Duration("elapsed", s.now().Sub(started)), zap.Error(err))
		return Result{}, pipelineError("transcribe audio", err)
	}

	result := Result{
		Text:                out.Text,
		Language:            out.Language,
		LanguageProbability: out.LanguageProbability,
		Elapsed:             s.now().Sub(started),
	}
	s.logger.Info("detected language", zap.String("language", result.Language), zap.Float64("probability", result.LanguageProbability))
	s.logger.Debug("decoded text", zap.String("text", result.Text))
	s.logger.Info("transcription finished", zap.String("engine", s.engine.Name()), zap.Int("chars", len(result.Text)), zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

func (s *Service) detectFormat(head []byte, filename string) audio.Format {
	format := audio.DetectFormat(head)
	if format != audio.FormatUnknown {
		return format
	}
	if byName, ok := audio.FormatFromName(filename); ok {
		return byName
	}
	return format
}

func (s *Service) persist(body io.Reader, ext string) (string, int64, error) {
	path := filepath.Join(s.cfg.ScratchDir, "upload-"+s.newID()+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}

	size, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write scratch file: %w", err)
	}
	return path, size, nil
}

// normalize returns the path the engine should read and whether it is WAV.
// Without a usable ffmpeg the original upload is handed through unchanged.
func (s *Service) normalize(ctx context.Context, path string, format audio.Format) (string, bool, error) {
	if format.IsWAV() {
		return path, true, nil
	}
	if s.normalizer == nil || !s.normalizer.Available() {
		s.logger.Debug("no audio normalizer available; passing upload through", zap.String("format", format.Name))
		return path, false, nil
	}

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".norm.wav"
	if err := s.normalizer.ToWAV(ctx, path, out); err != nil {
		s.remove(out)
		return "", false, err
	}
	return out, true, nil
}

func (s *Service) silent(path string) bool {
	silent, info, err := audio.IsSilentWAV(path, s.cfg.SilenceDBFS)
	if err != nil {
		s.logger.Warn("silence gate analysis failed; continuing transcription", zap.Error(err))
		return false
	}
	if silent {
		s.logger.Info("audio considered silent; skipping transcription",
			zap.Float64("rms_dbfs", info.RMSdBFS),
			zap.Float64("peak_dbfs", info.PeakdBFS),
			zap.Float64("threshold_dbfs", s.cfg.SilenceDBFS),
			zap.Duration("duration", info.Duration),
		)
	}
	return silent
}

func (s *Service) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove scratch file", zap.String("path", path), zap.Error(err))
	}
}
