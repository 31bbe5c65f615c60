package whisper

import "context"

type TranscriptionRequest struct {
	AudioPath string
	// Language is an ISO code, or "auto"/empty to let the model detect it.
	Language string
}

type Transcription struct {
	Text                string
	Language            string
	LanguageProbability float64
}

// Engine is a loaded speech model. Implementations are safe for concurrent use.
type Engine interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (Transcription, error)
	Name() string
}

func autoLanguage(lang string) bool {
	return lang == "" || lang == "auto"
}
