package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/0xcro3dile/neuroscholar/internal/adapters/filestore"
	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
	"github.com/0xcro3dile/neuroscholar/internal/domain/usecases"
)

// User-facing messages.
const (
	msgMissingKey = "Please configure an API key first"
	msgNoUploads  = "Please choose PDF or TXT files first"
	msgEmptyIndex = "Upload documents and press Process first"
	msgKeyLoaded  = "API key loaded from configuration"
)

type sessionResponse struct {
	ID            string           `json:"id"`
	HasKey        bool             `json:"has_key"`
	KeyFromConfig bool             `json:"key_from_config"`
	KeyNotice     string           `json:"key_notice,omitempty"`
	History       []historyMessage `json:"history"`
}

type historyMessage struct {
	Role    entities.Role `json:"role"`
	Content string        `json:"content"`
	HTML    string        `json:"html,omitempty"`
}

type sourceResponse struct {
	Document string  `json:"document"`
	Score    float64 `json:"score"`
	Excerpt  string  `json:"excerpt"`
}

type chatResponse struct {
	Answer             string           `json:"answer"`
	AnswerHTML         string           `json:"answer_html,omitempty"`
	StandaloneQuestion string           `json:"standalone_question,omitempty"`
	Sources            []sourceResponse `json:"sources"`
}

type processResponse struct {
	Files   []string `json:"files"`
	Chunks  int      `json:"chunks"`
	State   string   `json:"state"`
	Message string   `json:"message"`
}

type indexPage struct {
	KeyFromConfig bool
	KeyNotice     string
}

// handleIndex renders the single-page UI.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.sessions.get(w, r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := indexPage{KeyFromConfig: s.opts.KeyFromConfig}
	if page.KeyFromConfig {
		page.KeyNotice = msgKeyLoaded
	}
	if err := s.templates.ExecuteTemplate(w, "index.html", page); err != nil {
		s.logger.Error().Err(err).Msg("Rendering index")
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	p, _ := s.provider(r.Context(), sess)

	resp := sessionResponse{
		ID:            sess.id,
		HasKey:        p != nil,
		KeyFromConfig: s.opts.KeyFromConfig,
		History:       history(sess.conv.Messages()),
	}
	if s.opts.KeyFromConfig {
		resp.KeyNotice = msgKeyLoaded
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleKey builds the session provider from the entered key.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		writeError(w, http.StatusBadRequest, msgMissingKey)
		return
	}

	p, err := s.opts.NewProvider(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess.SetProvider(p)

	s.logger.Info().Str("session", sess.id).Str("provider", p.Name).Msg("Session key configured")
	writeJSON(w, http.StatusOK, map[string]any{"has_key": true, "provider": p.Name})
}

// handleProcess saves the uploaded files and rebuilds the index.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)
	p, err := s.provider(r.Context(), sess)
	if err != nil || p == nil {
		writeError(w, http.StatusBadRequest, msgMissingKey)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MiB", s.opts.MaxUploadBytes>>20))
			return
		}
		writeError(w, http.StatusBadRequest, msgNoUploads)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var uploads []usecases.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer f.Close()
		uploads = append(uploads, usecases.Upload{Name: fh.Filename, Body: f})
	}

	report, err := s.opts.Library.Process(r.Context(), p, uploads)
	switch {
	case errors.Is(err, usecases.ErrNoUploads):
		writeError(w, http.StatusBadRequest, msgNoUploads)
		return
	case errors.Is(err, filestore.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Str("session", sess.id).Msg("Processing documents failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Files:   report.Files,
		Chunks:  report.Chunks,
		State:   report.State.String(),
		Message: fmt.Sprintf("Processed %d documents", len(report.Files)),
	})
}

// handleClear deletes every document and the index. Chat history is kept.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.sessions.get(w, r)

	if err := s.opts.Library.Clear(); err != nil {
		s.logger.Error().Err(err).Msg("Clearing library failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "All documents cleared"})
}

// handleChat answers one question over the library.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.get(w, r)

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, usecases.ErrEmptyQuestion.Error())
		return
	}

	p, err := s.provider(r.Context(), sess)
	if err != nil || p == nil {
		writeError(w, http.StatusBadRequest, msgMissingKey)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.ChatTimeout)
	defer cancel()

	res := s.opts.Library.Open(ctx, p)
	switch res.State {
	case usecases.IndexEmpty:
		writeError(w, http.StatusConflict, msgEmptyIndex)
		return
	case usecases.IndexFailed:
		s.logger.Error().Err(res.Err).Msg("Index unavailable")
		writeError(w, http.StatusInternalServerError, res.Err.Error())
		return
	}

	resp, err := sess.conv.Ask(ctx, s.opts.Chat, p, s.opts.Library, req.Message)
	if err != nil {
		if errors.Is(err, usecases.ErrNoIndex) {
			writeError(w, http.StatusConflict, msgEmptyIndex)
			return
		}
		s.logger.Error().Err(err).Str("session", sess.id).Msg("Chat turn failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	out := chatResponse{
		Answer:             resp.Answer,
		AnswerHTML:         renderMarkdown(resp.Answer),
		StandaloneQuestion: resp.StandaloneQuestion,
		Sources:            make([]sourceResponse, 0, len(resp.Sources)),
	}
	for _, src := range resp.Sources {
		out.Sources = append(out.Sources, sourceResponse{
			Document: src.SourceDoc,
			Score:    src.Score,
			Excerpt:  excerpt(src.Chunk.Content, 240),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Library.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":           st.Documents,
		"changed_since_build": st.ChangedSinceBuild,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Library.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// provider returns the session provider, building it from the deployment
// key on first use when one is configured.
func (s *Server) provider(ctx context.Context, sess *session) (*ports.Provider, error) {
	if p := sess.Provider(); p != nil || !s.opts.KeyFromConfig {
		return p, nil
	}

	p, err := s.opts.NewProvider(ctx, s.opts.DeploymentKey)
	if err != nil {
		return nil, err
	}
	sess.SetProvider(p)
	return p, nil
}

func history(msgs []entities.ChatMessage) []historyMessage {
	out := make([]historyMessage, len(msgs))
	for i, m := range msgs {
		out[i] = historyMessage{Role: m.Role, Content: m.Content}
		if m.Role == entities.RoleAssistant {
			out[i].HTML = renderMarkdown(m.Content)
		}
	}
	return out
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
