package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/receiptwise/receiptwise/internal/extraction"
)

// maxUploadSize is the ingress contract: receipts over 5MB are rejected
// before the core runs.
const maxUploadSize = int64(5 << 20)

var allowedMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps a failure to an HTTP status by kind. Internal detail such
// as raw provider text stays in the logs; the client only sees the category
// message.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound      *extraction.NotFoundError
		notConfigured *extraction.NotConfiguredError
		refused       *extraction.RefusedError
		upstream      *extraction.UpstreamError
		unparsable    *extraction.UnparsableError
		shape         *extraction.ShapeError
		inconsistent  *InconsistentError
	)

	switch {
	case errors.Is(err, ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "receipt not found")
	case errors.As(err, &notFound):
		writeErrorMessage(w, http.StatusBadRequest, notFound.Error())
	case errors.As(err, &notConfigured):
		writeErrorMessage(w, http.StatusServiceUnavailable, notConfigured.Error())
	case errors.As(err, &refused):
		writeErrorMessage(w, http.StatusBadGateway, refused.Error())
	case errors.As(err, &unparsable):
		writeErrorMessage(w, http.StatusBadGateway, unparsable.Error())
	case errors.As(err, &upstream):
		writeErrorMessage(w, http.StatusBadGateway, "provider call failed")
	case errors.As(err, &shape):
		writeErrorMessage(w, http.StatusBadGateway, shape.Error())
	case errors.As(err, &inconsistent):
		body := map[string]any{
			"error":       inconsistent.Error(),
			"computedSum": inconsistent.Computed,
		}
		if inconsistent.Stated != nil {
			body["statedTotal"] = *inconsistent.Stated
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
	default:
		slog.Error("Internal error", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleUploadReceipt accepts a multipart receipt image with an optional
// provider form field, runs extraction, and returns the persisted record.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		writeErrorMessage(w, http.StatusBadRequest, "error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeErrorMessage(w, http.StatusBadRequest, "file is too large, maximum size is 5MB")
		return
	}

	mimeType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if mimeType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			mimeType = "image/jpeg"
		case ".png":
			mimeType = "image/png"
		}
	}
	if !allowedMimeTypes[mimeType] {
		writeErrorMessage(w, http.StatusBadRequest, "unsupported file type, expected image/png or image/jpeg")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeErrorMessage(w, http.StatusInternalServerError, "error reading file")
		return
	}

	receipt, err := s.service.Create(r.Context(), data, mimeType, r.FormValue("provider"))
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleListReceipts returns a list of all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.List()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// handleUpdateReceipt applies a user correction. The body goes through the
// same structural validation as AI output, so the two write paths cannot
// drift apart.
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	var doc extraction.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fields, err := extraction.Normalize(doc)
	if err != nil {
		var shape *extraction.ShapeError
		if errors.As(err, &shape) {
			writeErrorMessage(w, http.StatusBadRequest, shape.Error())
			return
		}
		writeError(w, err)
		return
	}

	receipt, err := s.service.Update(r.PathValue("id"), fields)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleListProviders returns the registered provider names and the default
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.service.Providers(),
		"default":   s.service.DefaultProvider(),
	})
}
