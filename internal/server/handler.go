package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fmueller/whisperd/internal/transcribe"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const audioField = "audio"

type transcribeHandler struct {
	svc    Transcriber
	opts   Options
	logger *zap.Logger
}

func (h *transcribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(h.opts.MaxMemory); err != nil {
		h.logger.Debug("multipart form rejected", zap.Error(err), zap.String("request_id", chimiddleware.GetReqID(r.Context())))
		h.fail(w, r, transcribe.ErrMissingInput)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(audioField)
	if err != nil {
		h.fail(w, r, transcribe.ErrMissingInput)
		return
	}
	defer file.Close()

	res, err := h.svc.Transcribe(r.Context(), transcribe.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": res.Text})
}

func (h *transcribeHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if transcribe.Classify(err) == transcribe.KindMissingInput {
		writeError(w, http.StatusBadRequest, transcribe.ErrMissingInput.Error())
		return
	}

	msg := err.Error()
	var pipeErr *transcribe.PipelineError
	if !errors.As(err, &pipeErr) {
		h.logger.Warn("unclassified transcription failure", zap.Error(err))
	}
	if msg == "" {
		msg = "transcription failed"
	}
	h.logger.Error("transcription request failed",
		zap.Error(err),
		zap.String("request_id", chimiddleware.GetReqID(r.Context())),
	)
	writeError(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
