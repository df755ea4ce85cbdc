package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/programmedstyle/livechat/internal/domain"
	"github.com/programmedstyle/livechat/internal/store"
	"github.com/programmedstyle/livechat/internal/version"
)

// messagesResponse is the envelope for message listings. Pagination fields
// are only populated by the cross-session listing.
type messagesResponse struct {
	Success     bool                 `json:"success"`
	Messages    []domain.ChatMessage `json:"messages"`
	TotalPages  int                  `json:"totalPages,omitempty"`
	CurrentPage int                  `json:"currentPage,omitempty"`
	Total       int                  `json:"total,omitempty"`
}

type messageResponse struct {
	Success bool               `json:"success"`
	Message domain.ChatMessage `json:"message"`
}

type statsResponse struct {
	Success bool         `json:"success"`
	Stats   domain.Stats `json:"stats"`
}

type deleteResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount int    `json:"deletedCount"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, errorResponse{Success: false, Error: reason})
}

// writeStoreError maps store failures onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	var nferr *domain.NotFoundError
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &nferr):
		writeError(w, http.StatusNotFound, nferr.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		s.log.Error().Err(err).Str("op", op).Msg("store error")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     version.Version,
		"connections": s.relay.Hub().Count(),
	})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// handleSessionTranscript returns one session's messages oldest-first. An
// unknown session is an empty transcript, not a 404.
func (s *Server) handleSessionTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	msgs, err := s.store.ListBySession(sessionID)
	if err != nil {
		s.writeStoreError(w, "listBySession", err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Success: true, Messages: msgs})
}

// handleListMessages returns a newest-first page across all sessions.
// Query params: unreadOnly, page, limit.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ListFilter{
		UnreadOnly: q.Get("unreadOnly") == "true",
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = v
	}

	page, err := s.store.ListAll(f)
	if err != nil {
		s.writeStoreError(w, "listAll", err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{
		Success:     true,
		Messages:    page.Messages,
		TotalPages:  page.TotalPages,
		CurrentPage: page.Page,
		Total:       page.Total,
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	msg, err := s.store.MarkRead(chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, "markRead", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msg})
}

type replyRequest struct {
	Reply string `json:"reply"`
}

// handleReply stores an operator reply as its own admin-authored record in
// the visitor's session, marks the replied-to message read, and fans the
// reply out through the relay.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.Reply) == "" {
		writeError(w, http.StatusBadRequest, "reply text is required")
		return
	}

	original, err := s.store.MarkRead(chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, "markRead", err)
		return
	}

	reply, err := s.store.Append(domain.ChatMessage{
		SessionID: original.SessionID,
		Name:      domain.AdminName,
		Email:     s.cfg.Auth.ReplyEmail,
		Body:      req.Reply,
		Read:      true,
		IsAdmin:   true,
	})
	if err != nil {
		s.writeStoreError(w, "append", err)
		return
	}

	s.relay.BroadcastAdminReply(reply)
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: reply})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.writeStoreError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Success: true, Stats: stats})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	n, err := s.store.DeleteBySession(sessionID)
	if err != nil {
		s.writeStoreError(w, "deleteBySession", err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{
		Success:      true,
		Message:      fmt.Sprintf("deleted chat session %s", sessionID),
		DeletedCount: n,
	})
}
