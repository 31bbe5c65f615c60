package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Whisper models consume 16 kHz mono audio.
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
)

// Transcoder converts arbitrary audio containers to 16 kHz mono PCM WAV with ffmpeg.
type Transcoder struct {
	Executable string
	Logger     *zap.Logger
}

func NewTranscoder(executable string, logger *zap.Logger) *Transcoder {
	if strings.TrimSpace(executable) == "" {
		executable = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcoder{Executable: executable, Logger: logger}
}

func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.Executable)
	return err == nil
}

func (t *Transcoder) ToWAV(ctx context.Context, inputPath, outputPath string) error {
	if inputPath == "" || outputPath == "" {
		return errors.New("input and output paths are required")
	}

	args := transcodeArgs(inputPath, outputPath)
	cmd := exec.CommandContext(ctx, t.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.Logger.Debug("transcoding audio", zap.String("ffmpeg", t.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg failed: %w (%s)", err, lastLine(msg))
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

func transcodeArgs(inputPath, outputPath string) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-vn",
		"-ac", fmt.Sprint(TargetChannels),
		"-ar", fmt.Sprint(TargetSampleRate),
		"-c:a", "pcm_s16le",
		outputPath,
	}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
