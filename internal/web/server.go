// Package web serves the browser front-end and the JSON API around the
// transcription service.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fmueller/voxscribe/internal/health"
	"github.com/fmueller/voxscribe/internal/observe"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/whisper"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed assets/index.html
var assets embed.FS

var indexTemplate = template.Must(template.ParseFS(assets, "assets/index.html"))

const (
	// DefaultMaxUpload bounds the request body of POST /api/transcribe.
	DefaultMaxUpload int64 = 2 << 30
	multipartMemory  int64 = 32 << 20
	shutdownTimeout        = 15 * time.Second
)

// Transcriber is the part of transcribe.Service the server needs.
type Transcriber interface {
	Run(ctx context.Context, req transcribe.Request, progress transcribe.Progress) (*transcribe.Report, error)
	OutputDir() string
}

type Options struct {
	Transcriber Transcriber
	Logger      *zap.Logger
	Metrics     *observe.Metrics
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Checkers       []health.Checker
	Runtime        health.Runtime
	ShowErrors     bool
	DefaultModel   string
	MaxUpload      int64
}

type Server struct {
	svc            Transcriber
	hub            *Hub
	health         *health.Handler
	logger         *zap.Logger
	metrics        *observe.Metrics
	metricsHandler http.Handler
	showErrors     bool
	defaultModel   string
	maxUpload      int64
}

func New(opts Options) *Server {
	s := &Server{
		svc:            opts.Transcriber,
		health:         health.New(opts.Runtime, opts.Checkers...),
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		metricsHandler: opts.MetricsHandler,
		showErrors:     opts.ShowErrors,
		defaultModel:   opts.DefaultModel,
		maxUpload:      opts.MaxUpload,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = observe.Discard()
	}
	if !slices.Contains(whisper.ModelNames(), s.defaultModel) {
		s.defaultModel = whisper.DefaultModel
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUpload
	}
	s.hub = NewHub(s.logger)
	return s
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /files/{name}", s.handleFile)
	mux.HandleFunc("GET /ws/progress", s.hub.ServeWS)
	s.health.Register(mux)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics, s.logger)(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// ready, when non-nil, receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, ready)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, ready func(net.Addr)) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("web server listening", zap.String("addr", ln.Addr().String()))
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down web server")
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown web server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type indexData struct {
	Models       []whisper.Model
	DefaultModel string
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, indexData{Models: whisper.Models(), DefaultModel: s.defaultModel}); err != nil {
		s.logger.Error("render index", zap.Error(err))
	}
}

type transcribeResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	SRTURL    string `json:"srt_url,omitempty"`
	TXTURL    string `json:"txt_url,omitempty"`
	Preview   string `json:"preview"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, transcribeResponse{Status: "Upload too large.", Error: "upload_too_large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, transcribeResponse{Status: "Malformed upload.", Error: "bad_request"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	requestID := strings.TrimSpace(r.FormValue("request_id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := s.logger.With(zap.String("request_id", requestID))

	workDir, err := os.MkdirTemp("", "voxscribe-upload-*")
	if err != nil {
		log.Error("create upload dir", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, transcribeResponse{RequestID: requestID, Status: "Could not store upload.", Error: "internal"})
		return
	}
	defer os.RemoveAll(workDir)

	filePath, err := saveUpload(r.MultipartForm, "file", workDir, "upload")
	if err == nil {
		var recordingPath string
		recordingPath, err = saveUpload(r.MultipartForm, "recording", filepath.Join(workDir, "recording"), "recording")
		if err == nil {
			s.transcribe(w, r, log, requestID, filePath, recordingPath)
			return
		}
	}

	log.Error("store upload", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, transcribeResponse{RequestID: requestID, Status: "Could not store upload.", Error: "internal"})
}

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request, log *zap.Logger, requestID, filePath, recordingPath string) {
	model := strings.TrimSpace(r.FormValue("model"))
	if model == "" {
		model = s.defaultModel
	}

	if (filePath != "" || recordingPath != "") && !slices.Contains(whisper.ModelNames(), model) {
		writeJSON(w, http.StatusBadRequest, transcribeResponse{
			RequestID: requestID,
			Status:    fmt.Sprintf("Unknown model %q. Choose one of: %s.", model, strings.Join(whisper.ModelNames(), ", ")),
			Error:     "unknown_model",
		})
		return
	}

	progress := func(fraction float64, desc string) {
		s.hub.Publish(Event{RequestID: requestID, Fraction: fraction, Description: desc})
	}

	report, err := s.svc.Run(r.Context(), transcribe.Request{
		File:      filePath,
		Recording: recordingPath,
		Model:     model,
		ID:        requestID,
	}, progress)
	out := transcribe.Render(report, err, s.showErrors)

	resp := transcribeResponse{RequestID: requestID, Status: out.Status, Preview: out.Preview}
	switch {
	case errors.Is(err, transcribe.ErrInputMissing):
		resp.Error = "input_missing"
		writeJSON(w, http.StatusBadRequest, resp)
	case err != nil:
		resp.Error = "processing_failed"
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		resp.SRTURL = fileURL(out.SRTPath)
		resp.TXTURL = fileURL(out.TXTPath)
		log.Debug("transcription served", zap.String("srt", out.SRTPath), zap.String("txt", out.TXTPath))
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !transcript.IsArtifactName(name) {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(filepath.Join(s.svc.OutputDir(), name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	contentType := "text/plain; charset=utf-8"
	if strings.HasSuffix(name, ".srt") {
		contentType = "application/x-subrip; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// saveUpload copies the first part named field into dir, keeping its base
// file name so the stem survives. It returns "" when the field is absent.
func saveUpload(form *multipart.Form, field, dir, fallback string) (string, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return "", nil
	}
	header := headers[0]

	name := filepath.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		name = fallback
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}

	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", field, err)
	}
	defer src.Close()

	path := filepath.Join(dir, name)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("copy %s: %w", field, err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func fileURL(path string) string {
	if path == "" {
		return ""
	}
	return "/files/" + url.PathEscape(filepath.Base(path))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
