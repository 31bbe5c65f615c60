package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const enginePathEnv = "WHISPERD_WHISPER_PATH"

// BundledEngine drives the whisper.cpp command line tool against one model file.
// The model path is fixed at construction and never changes afterwards.
type BundledEngine struct {
	Executable string
	ModelPath  string
	Threads    int
	Logger     *zap.Logger
}

func NewBundledEngine(modelPath string, logger *zap.Logger) (*BundledEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is required")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file unavailable: %w", err)
	}

	executable, err := locateEngine()
	if err != nil {
		return nil, err
	}

	return &BundledEngine{Executable: executable, ModelPath: modelPath, Logger: logger}, nil
}

func locateEngine() (string, error) {
	if override := strings.TrimSpace(os.Getenv(enginePathEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return "", fmt.Errorf("%s is not executable: %w", enginePathEnv, err)
		}
		return override, nil
	}

	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve whisperd executable path: %w", err)
	}
	if path, err := ResolveBundledEnginePath(self); err == nil {
		return path, nil
	}

	if path, err := exec.LookPath(engineBinaryName()); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("whisper engine not found: install whisper.cpp so %s is on PATH, place it under ../libexec/whisper next to whisperd, or set %s", engineBinaryName(), enginePathEnv)
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("bundled whisper engine not found near %s", selfExecutable)
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	hostTarget := fmt.Sprintf("%s_%s", runtime.GOOS, normalizeArch(runtime.GOARCH))

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

func (b *BundledEngine) Name() string {
	return "whisper.cpp"
}

func (b *BundledEngine) Transcribe(ctx context.Context, req TranscriptionRequest) (Transcription, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Transcription{}, errors.New("audio path is required")
	}
	if err := ensureExecutable(b.Executable); err != nil {
		return Transcription{}, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	outDir, err := os.MkdirTemp("", "whisperd-out-")
	if err != nil {
		return Transcription{}, fmt.Errorf("create whisper output directory: %w", err)
	}
	defer os.RemoveAll(outDir)
	outBase := filepath.Join(outDir, "transcript")

	args := b.args(req, outBase)
	cmd := exec.CommandContext(ctx, b.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	b.log().Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	started := time.Now()
	if err := cmd.Run(); err != nil {
		return Transcription{}, b.classifyFailure(err, stderr.String())
	}
	b.log().Debug("whisper engine finished", zap.Duration("elapsed", time.Since(started)))

	content, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return Transcription{}, fmt.Errorf("read whisper output: %w", err)
	}

	result := Transcription{Text: normalizeTranscript(string(content))}
	if lang, p, ok := parseDetectedLanguage(stderr.String()); ok {
		result.Language = lang
		result.LanguageProbability = p
	} else if !autoLanguage(req.Language) {
		result.Language = req.Language
	}
	return result, nil
}

func (b *BundledEngine) args(req TranscriptionRequest, outBase string) []string {
	lang := strings.TrimSpace(req.Language)
	if autoLanguage(lang) {
		lang = "auto"
	}

	args := []string{"-m", b.ModelPath, "-f", req.AudioPath, "-l", lang, "-nt", "-otxt", "-of", outBase}
	if b.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(b.Threads))
	}
	return args
}

func (b *BundledEngine) classifyFailure(err error, stderr string) error {
	errText := strings.TrimSpace(stderr)
	switch {
	case isMissingSharedLibraryError(errText):
		return fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
	case isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()):
		return fmt.Errorf("whisper engine crashed with an illegal CPU instruction; " +
			"your CPU may lack required instruction set extensions; " +
			"set " + enginePathEnv + " to a whisper-cli binary built for your CPU")
	case errText == "":
		return fmt.Errorf("whisper transcribe failed: %w", err)
	default:
		return fmt.Errorf("whisper transcribe failed: %w (%s)", err, lastLines(errText, 3))
	}
}

func (b *BundledEngine) log() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	for _, pattern := range []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	} {
		if strings.Contains(value, pattern) {
			return true
		}
	}
	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}

func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}
