package server

import (
	"net/http"

	"medexplain/pkg/domain"
)

type chatRequest struct {
	Message  string `json:"message"`
	ReportID string `json:"reportId"`
	Language string `json:"language"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	turn, err := s.app.SendMessage(r.Context(), user, req.ReportID, req.Message, req.Language)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleAllChatHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	grouped, err := s.app.AllChatHistory(user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatHistory": grouped})
}

// /api/chat/history/{reportId}
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	reportID, rest := pathID(r, "/api/chat/history/")
	if reportID == "" || rest != "" {
		http.NotFound(w, r)
		return
	}
	msgs, report, err := s.app.ChatHistory(user, reportID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"report": map[string]string{
			"id":    report.ID,
			"title": report.Title,
		},
	})
}

// /api/chat/clear/{reportId}; "general" clears the conversation without a report.
func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	reportID, rest := pathID(r, "/api/chat/clear/")
	if reportID == "" || rest != "" {
		http.NotFound(w, r)
		return
	}
	if err := s.app.ClearChat(user, reportID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat history cleared successfully"})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	id, rest := pathID(r, "/api/chat/messages/")
	if id == "" || rest != "" {
		http.NotFound(w, r)
		return
	}
	if err := s.app.DeleteMessage(user, id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted successfully"})
}
