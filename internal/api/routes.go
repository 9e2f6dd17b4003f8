package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/snipper/snipper/internal/config"
	"github.com/snipper/snipper/internal/download"
	"github.com/snipper/snipper/internal/export"
	"github.com/snipper/snipper/internal/playback"
	"github.com/snipper/snipper/internal/project"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORS())

	r.Get("/health", healthHandler(cfg))

	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", listProjectsHandler(cfg))
		r.Post("/", createProjectHandler(cfg))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getProjectHandler(cfg))
			r.Put("/", updateProjectHandler(cfg))
			r.Delete("/", deleteProjectHandler(cfg))
			r.Post("/download", startDownloadHandler(cfg))
			r.Get("/download/progress", downloadProgressHandler(cfg))
			r.Post("/export", exportHandler(cfg))
		})
	})

	r.Get("/projects/{id}/"+playback.VideoFilename, videoHandler(cfg))
	r.Head("/projects/{id}/"+playback.VideoFilename, videoHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}
		if n, err := cfg.Projects.Count(r.Context()); err == nil {
			resp.Projects = n
		}
		if cfg.Downloads != nil {
			resp.ActiveDownloads = cfg.Downloads.ActiveCount()
		}
		if cfg.Doctor != nil {
			resp.Tools = CapabilitiesToResponse(cfg.Doctor.Peek())
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Projects.List(r.Context())
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, projects)
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		p, err := cfg.Projects.Create(r.Context(), req.Name, req.URL)
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusCreated, p)
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)
	}
}

func updateProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch project.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		p, err := cfg.Projects.Update(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Projects.Delete(r.Context(), id); err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		if err := os.RemoveAll(cfg.Videos.ProjectDir(id)); err != nil {
			cfg.Logger.Warn("failed to remove project files", "project_id", id, "error", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func startDownloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := cfg.Downloads.Start(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, DownloadResponse{Status: "started"})
	}
}

func downloadProgressHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := cfg.Projects.Get(r.Context(), id); err != nil {
			writeServiceError(w, cfg, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming unsupported", "INTERNAL_ERROR")
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		h.Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)

		if err := cfg.Downloads.Stream(r.Context(), id, sseWriter{w, flusher}); err != nil {
			cfg.Logger.Warn("progress stream ended", "project_id", id, "error", err)
		}
	}
}

type sseWriter struct {
	http.ResponseWriter
	flusher http.Flusher
}

func (s sseWriter) Flush() { s.flusher.Flush() }

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		p, err := cfg.Projects.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}

		out := &attachmentWriter{
			w:           w,
			filename:    export.Filename(p.Name, format),
			contentType: format.ContentType(),
		}
		if _, err := cfg.Exporter.Export(r.Context(), p, format, out); err != nil {
			if out.started {
				cfg.Logger.Warn("export interrupted", "project_id", p.ID, "error", err)
				return
			}
			writeServiceError(w, cfg, err)
		}
	}
}

// attachmentWriter sends download headers on the first write, so a failed
// export can still answer with a JSON error.
type attachmentWriter struct {
	w           http.ResponseWriter
	filename    string
	contentType string
	started     bool
}

func (a *attachmentWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		h := a.w.Header()
		h.Set("Content-Type", a.contentType)
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.filename}))
		a.w.WriteHeader(http.StatusOK)
	}
	return a.w.Write(p)
}

func videoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := cfg.Videos.ServeVideo(w, r, id)
		switch {
		case errors.Is(err, playback.ErrVideoNotFound):
			WriteError(w, http.StatusNotFound, "Video not found", "NOT_FOUND")
		case err != nil:
			cfg.Logger.Error("playback error", "error", err, "project_id", id)
			WriteError(w, http.StatusInternalServerError, "failed to serve video", "INTERNAL_ERROR")
		}
	}
}

// writeServiceError maps domain errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, cfg ServerConfig, err error) {
	var verr *project.ValidationError
	switch {
	case errors.Is(err, project.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Project not found", "NOT_FOUND")
	case errors.Is(err, download.ErrInProgress):
		WriteError(w, http.StatusConflict, "Download already in progress", "CONFLICT")
	case errors.Is(err, download.ErrNoURL):
		WriteError(w, http.StatusBadRequest, "Project has no video URL", "BAD_REQUEST")
	case errors.Is(err, export.ErrNoSegments):
		WriteError(w, http.StatusBadRequest, "No segments to export", "BAD_REQUEST")
	case errors.Is(err, export.ErrVideoMissing):
		WriteError(w, http.StatusNotFound, "Video file not found", "NOT_FOUND")
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, verr.Error(), "BAD_REQUEST")
	default:
		cfg.Logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
