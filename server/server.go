package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fileconverter/models"
	"fileconverter/notify"
	"fileconverter/services"
)

// JobService is the boundary surface the HTTP layer exposes.
type JobService interface {
	Submit(ctx context.Context, file io.Reader, filename string, size int64, targetFormat string) (string, error)
	GetStatus(ctx context.Context, jobID string) (*services.StatusInfo, error)
	GetArtifact(ctx context.Context, jobID string) (io.ReadCloser, string, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Job, error)
	Delete(ctx context.Context, jobID string) error
}

type Server struct {
	router        *chi.Mux
	jobs          JobService
	hub           *notify.Hub
	maxUploadSize int64
}

func New(jobs JobService, hub *notify.Hub, maxUploadSize int64) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		jobs:          jobs,
		hub:           hub,
		maxUploadSize: maxUploadSize,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Post("/api/upload/", s.upload)
	s.router.Get("/api/status/{id}/", s.status)
	s.router.Get("/api/download/{id}/", s.download)
	s.router.Get("/api/history/", s.history)
	s.router.Delete("/api/delete/{id}/", s.delete)
	s.router.Post("/api/delete/{id}/", s.delete)
	s.router.Get("/ws/conversion/{id}/", s.progressWS)
	s.router.Get("/healthz", s.health)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing required parameter: file")
		return
	}
	defer file.Close()

	targetFormat := r.FormValue("target_format")
	if targetFormat == "" {
		s.respondError(w, http.StatusBadRequest, "missing required parameter: target_format")
		return
	}

	jobID, err := s.jobs.Submit(r.Context(), file, header.Filename, header.Size, targetFormat)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"conversion_id": jobID,
		"message":       "File uploaded successfully. Conversion started.",
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	info, err := s.jobs.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	body, filename, err := s.jobs.GetArtifact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("[HTTP] Failed to stream artifact: %v", err)
	}
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := s.jobs.ListRecent(r.Context(), limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	type summary struct {
		ID               string  `json:"id"`
		OriginalFilename string  `json:"original_filename"`
		OriginalFormat   string  `json:"original_format"`
		TargetFormat     string  `json:"target_format"`
		Status           string  `json:"status"`
		ConversionType   string  `json:"conversion_type"`
		CreatedAt        string  `json:"created_at"`
		FileSizeMB       float64 `json:"file_size_mb"`
	}

	out := make([]summary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, summary{
			ID:               j.ID,
			OriginalFilename: j.OriginalFilename,
			OriginalFormat:   j.OriginalFormat,
			TargetFormat:     j.TargetFormat,
			Status:           string(j.Status),
			ConversionType:   string(j.ConversionType),
			CreatedAt:        j.CreatedAt.Format(time.RFC3339),
			FileSizeMB:       j.FileSizeMB(),
		})
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"conversions": out})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Conversion deleted successfully",
	})
}

// respondServiceError maps the error taxonomy onto HTTP statuses
// without leaking internals.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrNotReady):
		s.respondError(w, http.StatusBadRequest, "File conversion not completed yet")
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrUnsupportedConversion):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[HTTP] Internal error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	s.respondJSON(w, code, map[string]interface{}{"success": false, "error": msg})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}
