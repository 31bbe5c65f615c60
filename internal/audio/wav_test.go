package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsSilentWAVDetectsSilence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "silent.wav")
	require.NoError(t, os.WriteFile(path, makePCM16WAV(make([]int16, 16000), 16000, 1), 0o644))

	silent, info, err := IsSilentWAV(path, -65)
	require.NoError(t, err)
	require.True(t, silent)
	require.True(t, math.IsInf(info.RMSdBFS, -1))
	require.True(t, math.IsInf(info.PeakdBFS, -1))
	require.EqualValues(t, 16000, info.Samples)
}

func TestIsSilentWAVDetectsSpeechLikeSignal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(path, makePCM16WAV(sine(16000, 0.25), 16000, 1), 0o644))

	silent, info, err := IsSilentWAV(path, -65)
	require.NoError(t, err)
	require.False(t, silent)
	require.Greater(t, info.PeakdBFS, -20.0)
	require.Greater(t, info.RMSdBFS, -20.0)
}

func TestIsSilentWAVInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "not-wav.wav")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, _, err := IsSilentWAV(path, -65)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func TestInspectWAVReportsStreamParameters(t *testing.T) {
	t.Parallel()

	info, err := InspectWAV(bytes.NewReader(makePCM16WAV(sine(32000, 0.5), 16000, 2)))
	require.NoError(t, err)
	require.Equal(t, 16000, info.SampleRate)
	require.Equal(t, 2, info.Channels)
	require.Equal(t, 16, info.BitsPerSample)
	require.EqualValues(t, 32000, info.Samples)
	require.Equal(t, time.Second, info.Duration)
}

func TestInspectWAVSkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	plain := makePCM16WAV(sine(1600, 0.5), 16000, 1)

	// Splice a LIST chunk with an odd payload between the RIFF header and fmt.
	var withList bytes.Buffer
	withList.Write(plain[:12])
	withList.WriteString("LIST")
	_ = binary.Write(&withList, binary.LittleEndian, uint32(3))
	withList.Write([]byte{'a', 'b', 'c', 0})
	withList.Write(plain[12:])

	info, err := InspectWAV(bytes.NewReader(withList.Bytes()))
	require.NoError(t, err)
	require.EqualValues(t, 1600, info.Samples)
	require.Equal(t, 100*time.Millisecond, info.Duration)
}

func TestInspectWAVRejectsUnsupportedEncoding(t *testing.T) {
	t.Parallel()

	wav := makePCM16WAV(make([]int16, 8), 8000, 1)
	binary.LittleEndian.PutUint16(wav[20:22], 7) // mu-law

	_, err := InspectWAV(bytes.NewReader(wav))
	require.ErrorIs(t, err, ErrUnsupportedWAV)
}

func TestInspectWAVMissingDataChunk(t *testing.T) {
	t.Parallel()

	wav := makePCM16WAV(nil, 8000, 1)
	_, err := InspectWAV(bytes.NewReader(wav[:36]))
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func sine(n int, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000.0))
	}
	return samples
}

func makePCM16WAV(samples []int16, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	_ = binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
