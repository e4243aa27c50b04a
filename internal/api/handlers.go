package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"docrag/internal/domain"
	"docrag/internal/extract"
	"docrag/internal/index"
	"docrag/internal/session"
)

type queryRequest struct {
	Query     string   `json:"query" validate:"required"`
	TopK      *int     `json:"top_k,omitempty" validate:"omitnil,gt=0"`
	Threshold *float64 `json:"threshold,omitempty" validate:"omitnil,gte=0,lte=1"`
}

type queryResponse struct {
	Query         string      `json:"query"`
	Hits          []index.Hit `json:"hits"`
	ContextTokens int         `json:"context_tokens"`
	Empty         bool        `json:"empty"`
}

type loadResponse struct {
	SessionID string           `json:"session_id"`
	Document  session.Document `json:"document"`
	Chunks    int              `json:"chunks"`
	Summary   string           `json:"summary"`
}

// handleLoadDocument accepts either a multipart "file" field or a raw body
// named by the "name" query parameter. It replaces the current document.
func (s *Server) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1024*1024)

	var (
		body     io.Reader
		filename string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()
		file, header, err := r.FormFile("file")
		if err != nil {
			jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, filename = file, header.Filename
	} else {
		body, filename = r.Body, r.URL.Query().Get("name")
		if filename == "" {
			filename = "document.txt"
		}
	}

	filename = sanitizeFilename(filename)
	if !extract.IsSupported(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusUnsupportedMediaType)
		return
	}
	data, err := io.ReadAll(io.LimitReader(body, s.maxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read document: "+err.Error(), http.StatusBadRequest)
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		jsonError(w, fmt.Sprintf("document exceeds max size (%d bytes)", s.maxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	doc, err := extract.FromReader(bytes.NewReader(data), filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	res, err := s.sess.LoadDocument(r.Context(), doc)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, loadResponse{
		SessionID: s.sess.ID(),
		Document:  res.Document,
		Chunks:    res.Chunks,
		Summary:   res.Summary,
	})
}

func (s *Server) handleResetDocument(w http.ResponseWriter, r *http.Request) {
	s.sess.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		jsonError(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	topK, threshold := s.sess.Retrieval()
	if req.TopK != nil {
		topK = *req.TopK
	}
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	ans, err := s.sess.AskTop(r.Context(), req.Query, topK, threshold)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Query:         ans.Query,
		Hits:          ans.Hits,
		ContextTokens: ans.ContextTokens,
		Empty:         ans.Empty,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Info())
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotBuilt):
		jsonError(w, "no document loaded", http.StatusConflict)
	case domain.IsValidation(err):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, extract.ErrUnsupported):
		jsonError(w, err.Error(), http.StatusUnsupportedMediaType)
	default:
		s.log.Error("request failed", "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s' tag", e.Field(), e.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
