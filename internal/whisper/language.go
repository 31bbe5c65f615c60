package whisper

import (
	"regexp"
	"strconv"
	"strings"
)

// whisper.cpp logs e.g. "whisper_full_with_state: auto-detected language: en (p = 0.976953)".
var detectedLanguagePattern = regexp.MustCompile(`auto-detected language:\s*([A-Za-z_-]+)\s*\(p\s*=\s*([0-9.]+)\)`)

const blankAudioToken = "[BLANK_AUDIO]"

func parseDetectedLanguage(log string) (string, float64, bool) {
	match := detectedLanguagePattern.FindStringSubmatch(log)
	if len(match) < 3 {
		return "", 0, false
	}

	p, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		p = 0
	}
	return strings.ToLower(match[1]), p, true
}

// normalizeTranscript joins whisper-cli's per-segment lines and maps the
// blank-audio marker to an empty transcript.
func normalizeTranscript(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, blankAudioToken) {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}
