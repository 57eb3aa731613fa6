package server

import (
	"net/http"

	"medexplain/pkg/domain"
)

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
	SourceLanguage string `json:"sourceLanguage"`
}

type contentRequest struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req translateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.Translate(r.Context(), req.Text, req.TargetLanguage, req.SourceLanguage)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	explanation, code, err := s.app.Explain(r.Context(), user, req.Content, req.Language)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"explanation": explanation, "language": code})
}

func (s *Server) handleHealthTips(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tips, code, err := s.app.HealthTips(r.Context(), user, req.Content, req.Language)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"healthTips": tips, "language": code})
}

func (s *Server) handleKeyFindings(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	findings, err := s.app.KeyFindings(r.Context(), req.Content)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keyFindings": findings})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	analysis, err := s.app.Analyze(r.Context(), user, req.Content, req.Language)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
