package server

import (
	"context"
	"net/http"

	"github.com/fmueller/whisperd/internal/transcribe"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	TranscribePath = "/api/transcribe"

	DefaultMaxUploadBytes int64 = 100 << 20
	DefaultMaxMemory      int64 = 32 << 20
)

// Transcriber is the slice of transcribe.Service the HTTP layer depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, up transcribe.Upload) (transcribe.Result, error)
}

type Options struct {
	MaxUploadBytes int64
	MaxMemory      int64
	CORSOrigins    []string
}

func NewRouter(svc Transcriber, opts Options, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxMemory <= 0 {
		opts.MaxMemory = DefaultMaxMemory
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(cors(opts.CORSOrigins))

	h := &transcribeHandler{svc: svc, opts: opts, logger: logger}
	r.Post(TranscribePath, h.ServeHTTP)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
