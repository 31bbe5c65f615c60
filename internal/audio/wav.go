package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WAVInfo describes a PCM or IEEE-float WAV stream and its signal level.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       int64
	Duration      time.Duration
	RMSdBFS       float64
	PeakdBFS      float64
}

type wavHeader struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
	dataOffset    int64
	dataSize      int64
}

// IsSilentWAV reports whether the file at path is near-silent. Both the RMS level
// and the peak (with 6 dB of headroom) must sit under thresholdDBFS.
func IsSilentWAV(path string, thresholdDBFS float64) (bool, WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, WAVInfo{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	info, err := InspectWAV(f)
	if err != nil {
		return false, WAVInfo{}, err
	}
	return info.silent(thresholdDBFS), info, nil
}

func (w WAVInfo) silent(thresholdDBFS float64) bool {
	if w.Samples == 0 {
		return true
	}
	if math.IsInf(w.RMSdBFS, -1) && math.IsInf(w.PeakdBFS, -1) {
		return true
	}
	return w.RMSdBFS <= thresholdDBFS && w.PeakdBFS <= thresholdDBFS+6
}

func InspectWAV(r io.ReadSeeker) (WAVInfo, error) {
	hdr, err := readWAVHeader(r)
	if err != nil {
		return WAVInfo{}, err
	}

	if _, err := r.Seek(hdr.dataOffset, io.SeekStart); err != nil {
		return WAVInfo{}, fmt.Errorf("seek wav data offset: %w", err)
	}

	bytesPerSample := int(hdr.bitsPerSample / 8)
	data := bufio.NewReaderSize(io.LimitReader(r, hdr.dataSize), 64*1024)
	sample := make([]byte, bytesPerSample)

	var peak, sumSquares float64
	var samples int64
	for {
		if _, err := io.ReadFull(data, sample); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return WAVInfo{}, fmt.Errorf("read wav data: %w", err)
		}

		value := decodeSample(sample, hdr.audioFormat, hdr.bitsPerSample)
		if abs := math.Abs(value); abs > peak {
			peak = abs
		}
		sumSquares += value * value
		samples++
	}

	info := WAVInfo{
		SampleRate:    int(hdr.sampleRate),
		Channels:      int(hdr.channels),
		BitsPerSample: int(hdr.bitsPerSample),
		Samples:       samples,
		RMSdBFS:       math.Inf(-1),
		PeakdBFS:      math.Inf(-1),
	}
	if hdr.sampleRate > 0 && hdr.channels > 0 {
		frames := samples / int64(hdr.channels)
		info.Duration = time.Duration(frames) * time.Second / time.Duration(hdr.sampleRate)
	}
	if samples > 0 {
		info.RMSdBFS = amplitudeToDBFS(math.Sqrt(sumSquares / float64(samples)))
		info.PeakdBFS = amplitudeToDBFS(peak)
	}
	return info, nil
}

func readWAVHeader(r io.ReadSeeker) (wavHeader, error) {
	riff := make([]byte, 12)
	if _, err := io.ReadFull(r, riff); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return wavHeader{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return wavHeader{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(riff[:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return wavHeader{}, ErrInvalidWAV
	}

	var hdr wavHeader
	var hasFmt, hasData bool
	chunk := make([]byte, 8)
	for !(hasFmt && hasData) {
		if _, err := io.ReadFull(r, chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return wavHeader{}, fmt.Errorf("read wav chunk header: %w", err)
		}

		id := string(chunk[:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		padded := size + size%2

		switch id {
		case "fmt ":
			if size < 16 {
				return wavHeader{}, ErrInvalidWAV
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return wavHeader{}, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			if padded > size {
				if _, err := r.Seek(padded-size, io.SeekCurrent); err != nil {
					return wavHeader{}, fmt.Errorf("seek wav fmt padding: %w", err)
				}
			}
			hdr.audioFormat = binary.LittleEndian.Uint16(body[0:2])
			hdr.channels = binary.LittleEndian.Uint16(body[2:4])
			hdr.sampleRate = binary.LittleEndian.Uint32(body[4:8])
			hdr.bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			hasFmt = true
		case "data":
			offset, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return wavHeader{}, fmt.Errorf("seek wav data chunk: %w", err)
			}
			hdr.dataOffset = offset
			hdr.dataSize = size
			hasData = true
			if _, err := r.Seek(padded, io.SeekCurrent); err != nil {
				return wavHeader{}, fmt.Errorf("seek past wav data chunk: %w", err)
			}
		default:
			if _, err := r.Seek(padded, io.SeekCurrent); err != nil {
				return wavHeader{}, fmt.Errorf("seek wav chunk %s: %w", id, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return wavHeader{}, ErrInvalidWAV
	}
	if !supportedEncoding(hdr.audioFormat, hdr.bitsPerSample) {
		return wavHeader{}, ErrUnsupportedWAV
	}
	return hdr, nil
}

func supportedEncoding(audioFormat, bitsPerSample uint16) bool {
	switch audioFormat {
	case wavFormatPCM:
		return bitsPerSample == 8 || bitsPerSample == 16 || bitsPerSample == 24 || bitsPerSample == 32
	case wavFormatFloat:
		return bitsPerSample == 32 || bitsPerSample == 64
	default:
		return false
	}
}

// decodeSample normalizes one little-endian sample to [-1, 1].
func decodeSample(sample []byte, audioFormat, bitsPerSample uint16) float64 {
	if audioFormat == wavFormatFloat {
		if bitsPerSample == 64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(sample))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(sample)))
	}

	switch bitsPerSample {
	case 8:
		return (float64(sample[0]) - 128.0) / 128.0
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(sample))) / 32768.0
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0
	default:
		return float64(int32(binary.LittleEndian.Uint32(sample))) / 2147483648.0
	}
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
