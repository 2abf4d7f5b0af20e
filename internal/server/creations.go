package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"pharmasure/internal/app"
	"pharmasure/pkg/creation"
	"pharmasure/pkg/domain"
	"pharmasure/pkg/storage"
	"pharmasure/pkg/upload"
)

// Generated dashboards run inline scripts and load CDN styles, but never
// share an origin with the API.
const dashboardCSP = "sandbox allow-scripts allow-popups; default-src 'none'; script-src 'unsafe-inline' https:; style-src 'unsafe-inline' https:; img-src https: data:; font-src https: data:"

type creationSummary struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Timestamp     string          `json:"timestamp"`
	DocumentTitle string          `json:"documentTitle,omitempty"`
	Sources       []domain.Source `json:"sources"`
}

func (s *Server) handleCreations(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	switch r.Method {
	case http.MethodGet:
		history := sess.State.History()
		out := make([]creationSummary, 0, len(history))
		for _, c := range history {
			out = append(out, creationSummary{
				ID:            c.ID,
				Name:          c.Name,
				Timestamp:     c.Timestamp.Format(time.RFC3339Nano),
				DocumentTitle: c.DocumentTitle,
				Sources:       c.Sources,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"creations":  out,
			"generating": sess.Pipeline.Generating(),
		})
	case http.MethodPost:
		s.handleSubmit(w, r, sess)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	prompt, file, err := s.readSubmission(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, upload.ErrUnsupportedFileType):
			writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		default:
			writeError(w, http.StatusBadRequest, "invalid submission")
		}
		return
	}
	if sess.Pipeline.Generating() {
		writeError(w, http.StatusConflict, "a generation is already in progress")
		return
	}

	// only submissions that would reach the model are charged
	user := sess.User()
	if s.limiter != nil && !s.limiter.Allow(r.Context(), "generate:"+user.Email) {
		s.audit(r, "creation.submit", "rate_limited", "email", user.Email)
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "too many generation requests")
		return
	}

	c, ok, err := sess.Pipeline.Submit(r.Context(), prompt, file)
	switch {
	case err != nil:
		if errors.Is(err, creation.ErrGenerationFailed) {
			writeError(w, http.StatusBadGateway, creation.ErrGenerationFailed.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	case !ok:
		writeError(w, http.StatusConflict, "a generation is already in progress")
	default:
		writeJSON(w, http.StatusCreated, c)
	}
}

// readSubmission accepts multipart (prompt, file) or a JSON {"prompt"} body.
func (s *Server) readSubmission(w http.ResponseWriter, r *http.Request) (string, *upload.File, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			return "", nil, err
		}
		return req.Prompt, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+maxJSONBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, err
	}
	defer r.MultipartForm.RemoveAll()
	prompt := r.FormValue("prompt")

	part, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return prompt, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, s.maxUploadBytes+1))
	if err != nil {
		return "", nil, err
	}
	if int64(len(data)) > s.maxUploadBytes {
		return "", nil, &http.MaxBytesError{Limit: s.maxUploadBytes}
	}
	file, err := upload.New(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		return "", nil, err
	}
	return prompt, file, nil
}

func (s *Server) lookupCreation(w http.ResponseWriter, r *http.Request, sess *app.Session) (domain.Creation, bool) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return domain.Creation{}, false
	}
	c, ok := sess.State.Creation(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "creation not found")
		return domain.Creation{}, false
	}
	return c, true
}

func (s *Server) handleCreation(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	if c, ok := s.lookupCreation(w, r, sess); ok {
		writeJSON(w, http.StatusOK, c)
	}
}

func (s *Server) handleCreationHTML(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	c, ok := s.lookupCreation(w, r, sess)
	if !ok {
		return
	}
	markup := c.HTML
	if s.sanitizer != nil {
		markup = s.sanitizer.Sanitize(markup)
	}
	w.Header().Set("Content-Security-Policy", dashboardCSP)
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, markup)
}

func (s *Server) handleCreationSource(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	c, ok := s.lookupCreation(w, r, sess)
	if !ok {
		return
	}
	if s.archive == nil || strings.TrimSpace(c.SourceKey) == "" {
		writeError(w, http.StatusNotFound, "no archived source")
		return
	}
	u, err := s.archive.PresignGet(r.Context(), c.SourceKey, s.sourceURLExpiry)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no archived source")
			return
		}
		writeError(w, http.StatusBadGateway, "archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":       u,
		"expiresIn": int(s.sourceURLExpiry.Seconds()),
	})
}
