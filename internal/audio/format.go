package audio

import (
	"bytes"
	"path/filepath"
	"strings"
)

// SniffLen is the number of leading bytes DetectFormat looks at.
const SniffLen = 16

type Format struct {
	Name string
	Ext  string
}

var (
	FormatWAV  = Format{Name: "wav", Ext: ".wav"}
	FormatMP3  = Format{Name: "mp3", Ext: ".mp3"}
	FormatAAC  = Format{Name: "aac", Ext: ".aac"}
	FormatOGG  = Format{Name: "ogg", Ext: ".ogg"}
	FormatFLAC = Format{Name: "flac", Ext: ".flac"}
	FormatWebM = Format{Name: "webm", Ext: ".webm"}
	FormatMP4  = Format{Name: "mp4", Ext: ".m4a"}

	// FormatUnknown keeps the .mp3 suffix browsers and the web UI have always sent.
	FormatUnknown = Format{Name: "unknown", Ext: ".mp3"}
)

func (f Format) IsWAV() bool {
	return f == FormatWAV
}

// DetectFormat identifies the audio container from its magic bytes.
func DetectFormat(head []byte) Format {
	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOGG
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(head, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return FormatMP4
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// MPEG frame sync; layer bits 00 mark ADTS AAC rather than an MP3 frame.
		if head[1]&0x06 == 0 {
			return FormatAAC
		}
		return FormatMP3
	default:
		return FormatUnknown
	}
}

var formatsByExt = map[string]Format{
	".wav":  FormatWAV,
	".wave": FormatWAV,
	".mp3":  FormatMP3,
	".aac":  FormatAAC,
	".ogg":  FormatOGG,
	".oga":  FormatOGG,
	".opus": FormatOGG,
	".flac": FormatFLAC,
	".webm": FormatWebM,
	".m4a":  FormatMP4,
	".mp4":  FormatMP4,
}

// FormatFromName maps a file name extension to a known format.
func FormatFromName(name string) (Format, bool) {
	f, ok := formatsByExt[strings.ToLower(filepath.Ext(name))]
	return f, ok
}
