package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/fmueller/whisperd/internal/whisper"
)

// testApp returns app defaults with an empty environment so parallel tests do
// not see each other's variables.
func testApp(env map[string]string) *appState {
	app := newAppState()
	app.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return app
}

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	return runApp(t, context.Background(), testApp(nil), args)
}

func runApp(t *testing.T, ctx context.Context, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(ctx)
	return outBuf.String(), errBuf.String(), err
}

type stubEngine struct {
	mu    sync.Mutex
	text  string
	err   error
	paths []string
	langs []string
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Transcribe(_ context.Context, req whisper.TranscriptionRequest) (whisper.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, req.AudioPath)
	s.langs = append(s.langs, req.Language)
	return whisper.Transcription{Text: s.text, Language: "en"}, s.err
}

func makePCM16WAVForTest(samples []int16, sampleRate int, channels int) []byte {
	var buf bytes.Buffer
	dataSize := uint32(len(samples) * 2)

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	_ = binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
