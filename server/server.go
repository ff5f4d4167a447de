package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"posfeed/ingest"
	"posfeed/normalize"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Ingestor  *ingest.Service
	Log       *slog.Logger
	InboxDir  string
	MaxUpload int64
}

// Server exposes file ingestion over HTTP.
type Server struct {
	Ingestor  *ingest.Service
	Log       *slog.Logger
	InboxDir  string
	MaxUpload int64

	router http.Handler
}

const defaultMaxUpload = 64 << 20

// New constructs a configured HTTP router for the ingestion API.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = defaultMaxUpload
	}
	srv := &Server{
		Ingestor:  cfg.Ingestor,
		Log:       cfg.Log,
		InboxDir:  strings.TrimSpace(cfg.InboxDir),
		MaxUpload: cfg.MaxUpload,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/files", s.UploadFile)
		api.Post("/ingest", s.IngestPath)
	})
	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// UploadFile accepts a multipart upload, stores it in the inbox directory,
// and ingests it immediately. The stored copy stays behind for replay.
func (s *Server) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload)
	if err := r.ParseMultipartForm(s.MaxUpload); err != nil {
		http.Error(w, "invalid multipart payload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(s.InboxDir, 0o755); err != nil {
		s.Log.Error("inbox unavailable", "dir", s.InboxDir, "err", err)
		http.Error(w, "inbox unavailable", http.StatusInternalServerError)
		return
	}
	dest := filepath.Join(s.InboxDir, name)
	out, err := os.Create(dest)
	if err != nil {
		s.Log.Error("inbox write failed", "path", dest, "err", err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	if err := out.Close(); err != nil {
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}

	res, err := s.Ingestor.Ingest(r.Context(), dest)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ingestResponse{
			File:   name,
			Result: res,
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{File: name, Result: res})
}

// IngestPath triggers ingestion of a file or directory already on disk.
func (s *Server) IngestPath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "path not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to stat path", http.StatusInternalServerError)
		return
	}

	if info.IsDir() {
		results, err := s.Ingestor.IngestDir(r.Context(), req.Path)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, batchResponse{
				Path:    req.Path,
				Results: results,
				Error:   err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, batchResponse{Path: req.Path, Results: results})
		return
	}

	res, err := s.Ingestor.Ingest(r.Context(), req.Path)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ingestResponse{
			File:   filepath.Base(req.Path),
			Result: res,
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{File: filepath.Base(req.Path), Result: res})
}

// Health reports liveness. Database reachability is checked so a wedged
// connection pool fails the probe.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.Ingestor.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestResponse struct {
	File   string           `json:"file"`
	Result normalize.Result `json:"result"`
	Error  string           `json:"error,omitempty"`
}

type batchResponse struct {
	Path    string             `json:"path"`
	Results []normalize.Result `json:"results"`
	Error   string             `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
