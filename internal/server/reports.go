package server

import (
	"errors"
	"net/http"

	"medexplain/internal/app"
	"medexplain/pkg/domain"
)

type createReportRequest struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	TargetLanguage string `json:"targetLanguage"`
}

type reprocessRequest struct {
	TargetLanguage string `json:"targetLanguage"`
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		reports, err := s.app.ListReports(user)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if reports == nil {
			reports = []domain.Report{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
	case http.MethodPost:
		var req createReportRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		report, err := s.app.CreateReport(r.Context(), user, req.Title, req.Content, req.TargetLanguage)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Report created successfully", "report": report})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded (field: file)")
		return
	}
	defer file.Close()

	report, err := s.app.UploadReport(r.Context(), user, app.Upload{
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		Size:           header.Size,
		Body:           file,
		Title:          r.FormValue("title"),
		TargetLanguage: r.FormValue("targetLanguage"),
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Report uploaded and processed successfully", "report": report})
}

// /api/reports/{id} or /api/reports/{id}/reprocess
func (s *Server) handleReportByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, action := pathID(r, "/api/reports/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if action == "reprocess" {
		s.handleReprocess(w, r, user, id)
		return
	}
	if action != "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		report, err := s.app.GetReport(user, id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"report": report})
	case http.MethodDelete:
		if err := s.app.DeleteReport(r.Context(), user, id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Report deleted successfully"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req reprocessRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	report, err := s.app.ReprocessReport(r.Context(), user, id, req.TargetLanguage)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Report reprocessed successfully", "report": report})
}
