package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCLIErrorCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{
			name:        "unknown command",
			args:        []string{"badcmd"},
			errContains: "unknown command",
		},
		{
			name:        "unknown root flag",
			args:        []string{"--badflag"},
			errContains: "unknown flag",
		},
		{
			name:        "unknown subcommand flag",
			args:        []string{"transcribe", "--bogus", "f.wav"},
			errContains: "unknown flag",
		},
		{
			name:        "transcribe missing arg",
			args:        []string{"transcribe"},
			errContains: "accepts 1 arg(s)",
		},
		{
			name:        "transcribe too many args",
			args:        []string{"transcribe", "a.wav", "b.wav"},
			errContains: "accepts 1 arg(s)",
		},
		{
			name:        "transcribe nonexistent file",
			args:        []string{"transcribe", "/no/such/file.wav"},
			errContains: "audio file not found",
		},
		{
			name:        "serve rejects positional args",
			args:        []string{"serve", "extra"},
			errContains: "unknown command",
		},
		{
			name:        "explicit env file missing",
			args:        []string{"version", "--env-file", "/no/such/dir/.env"},
			errContains: "load env file",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := runCommand(t, tt.args)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestSetupRejectsNonexistentCustomModelPath(t *testing.T) {
	t.Parallel()

	_, _, err := runCommand(t, []string{"setup", "--model-dir", t.TempDir(), "--model", "/no/such/path/model.bin"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "custom model path does not exist")
}

func TestSetupRejectsCustomModelFile(t *testing.T) {
	t.Parallel()

	model := filepath.Join(t.TempDir(), "custom.bin")
	require.NoError(t, os.WriteFile(model, []byte("ggml"), 0o644))

	_, _, err := runCommand(t, []string{"setup", "--model-dir", t.TempDir(), "--model", model})
	require.Error(t, err)
	require.Contains(t, err.Error(), "setup expects a named model")
}

func TestTranscribeUnknownEngine(t *testing.T) {
	t.Parallel()

	audioPath := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(audioPath, makePCM16WAVForTest(make([]int16, 160), 16000, 1), 0o644))

	_, _, err := runCommand(t, []string{"transcribe", "--engine", "nope", audioPath})
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown engine "nope"`)
}

func TestVersionFlagOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"--version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "whisperd v"), "expected version prefix, got: %s", stdout)
}

func TestVersionCommandOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "whisperd v"), "expected version prefix, got: %s", stdout)
}
