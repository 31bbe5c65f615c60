package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/whisperd/internal/transcribe"
	"github.com/fmueller/whisperd/internal/whisper"
	"github.com/stretchr/testify/require"
)

func TestTranscribeCommandPrintsText(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "clip.wav")
	require.NoError(t, os.WriteFile(audioPath, makePCM16WAVForTest([]int16{100, -100, 2000, -2000}, 16000, 1), 0o644))
	scratch := filepath.Join(dir, "scratch")

	engine := &stubEngine{text: "hello from the stub"}
	app := testApp(nil)
	app.engineFn = func(context.Context) (whisper.Engine, error) { return engine, nil }

	stdout, _, err := runApp(t, context.Background(), app, []string{
		"transcribe", "--no-progress", "--scratch-dir", scratch, "--language", "EN", audioPath,
	})
	require.NoError(t, err)
	require.Equal(t, "hello from the stub\n", stdout)

	require.Len(t, engine.paths, 1)
	require.Equal(t, scratch, filepath.Dir(engine.paths[0]))
	require.Equal(t, "en", engine.langs[0])

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.FileExists(t, audioPath)
}

func TestTranscribeCommandSilenceGate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "silent.wav")
	require.NoError(t, os.WriteFile(audioPath, makePCM16WAVForTest(make([]int16, 16000), 16000, 1), 0o644))

	engine := &stubEngine{text: "not expected"}
	app := testApp(nil)
	app.engineFn = func(context.Context) (whisper.Engine, error) { return engine, nil }

	stdout, _, err := runApp(t, context.Background(), app, []string{
		"transcribe", "--no-progress", "--scratch-dir", filepath.Join(dir, "scratch"), "--silence-gate", audioPath,
	})
	require.NoError(t, err)
	require.Equal(t, "\n", stdout)
	require.Empty(t, engine.paths)
}

func TestTranscribeCommandReportsPipelineFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "clip.wav")
	require.NoError(t, os.WriteFile(audioPath, makePCM16WAVForTest([]int16{1, 2, 3}, 16000, 1), 0o644))

	app := testApp(nil)
	app.engineFn = func(context.Context) (whisper.Engine, error) {
		return &stubEngine{err: errors.New("whisper-cli crashed")}, nil
	}

	_, _, err := runApp(t, context.Background(), app, []string{
		"transcribe", "--no-progress", "--scratch-dir", filepath.Join(dir, "scratch"), audioPath,
	})
	require.Error(t, err)
	require.Equal(t, transcribe.KindPipelineFailure, transcribe.Classify(err))
	require.Contains(t, err.Error(), "whisper-cli crashed")
}

func TestTranscribeCommandUsesInjectedTranscriber(t *testing.T) {
	t.Parallel()

	var gotPath string
	app := testApp(nil)
	app.transcribeFn = func(_ context.Context, path string) (transcribe.Result, error) {
		gotPath = path
		return transcribe.Result{Text: "injected"}, nil
	}

	stdout, _, err := runApp(t, context.Background(), app, []string{"transcribe", "/tmp/any.mp3"})
	require.NoError(t, err)
	require.Equal(t, "injected\n", stdout)
	require.Equal(t, "/tmp/any.mp3", gotPath)
}
