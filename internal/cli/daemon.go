package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lifeos/tasks/internal/config"
	"github.com/lifeos/tasks/internal/db"
	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/ingest"
	"github.com/lifeos/tasks/internal/merge"
	"github.com/lifeos/tasks/internal/record"
	"github.com/lifeos/tasks/internal/review"
	"github.com/lifeos/tasks/internal/store"
	"github.com/lifeos/tasks/internal/worker"
)

// maxBundleBytes bounds uploaded import bundles.
const maxBundleBytes = 32 << 20

// DaemonOptions configures the tasksd daemon.
type DaemonOptions struct {
	Addr   string
	Unix   string
	Token  string
	DBPath string
}

// ServeDaemon starts the tasksd daemon: the HTTP API plus the
// background worker that promotes dictation events into candidates.
func ServeDaemon(opts DaemonOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	_, pending, err := database.MigrationStatus()
	if err != nil {
		database.Close()
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if len(pending) > 0 {
		database.Close()
		return fmt.Errorf("database requires migration: %d pending migration(s). Run 'tasksadm migrate' to update", len(pending))
	}

	st := store.New(database)
	server := newDaemonServer(st, cfg, opts.Token)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.New(st, time.Duration(cfg.WorkerInterval)*time.Second).Run(ctx)

	mux := http.NewServeMux()
	server.registerRoutes(mux)

	httpServer := &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if opts.Unix != "" {
		_ = os.Remove(opts.Unix)
		listener, err := net.Listen("unix", opts.Unix)
		if err != nil {
			database.Close()
			return fmt.Errorf("failed to listen on unix socket: %w", err)
		}
		defer listener.Close()
		return httpServer.Serve(listener)
	}

	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:7272"
	}
	httpServer.Addr = addr

	return httpServer.ListenAndServe()
}

type daemonServer struct {
	store  *store.Store
	cfg    *config.Config
	token  string
	ingest *ingest.Service
	review *review.Service
}

func newDaemonServer(st *store.Store, cfg *config.Config, token string) *daemonServer {
	return &daemonServer{
		store:  st,
		cfg:    cfg,
		token:  token,
		ingest: ingest.NewService(st),
		review: review.NewService(st),
	}
}

func (s *daemonServer) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /ingest/dictation", s.withAuth(s.handleIngestDictation))
	mux.HandleFunc("POST /ingest/slack/events", s.handleIngestSlack)

	mux.HandleFunc("GET /api/review", s.withAuth(s.handleReviewQueue))
	mux.HandleFunc("GET /api/review/approved", s.withAuth(s.handleReviewApproved))
	mux.HandleFunc("POST /api/review/{id}/approve", s.withAuth(s.handleReviewApprove))
	mux.HandleFunc("POST /api/review/{id}/reject", s.withAuth(s.handleReviewReject))

	mux.HandleFunc("GET /api/export", s.withAuth(s.handleExport))
	mux.HandleFunc("POST /api/import/preview", s.withAuth(s.handleImportPreview))
	mux.HandleFunc("POST /api/import", s.withAuth(s.handleImport))
}

func (s *daemonServer) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			token := r.Header.Get("Authorization")
			if strings.HasPrefix(token, "Bearer ") {
				token = strings.TrimPrefix(token, "Bearer ")
			}
			if token == "" {
				token = r.Header.Get("X-Tasksd-Token")
			}
			if token != s.token {
				s.writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
				return
			}
		}

		next(w, r)
	}
}

func (s *daemonServer) decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

func (s *daemonServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *daemonServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]interface{}{
		"detail": err.Error(),
	})
}

func (s *daemonServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

type dictationRequest struct {
	Text string `json:"text"`
}

func (s *daemonServer) handleIngestDictation(w http.ResponseWriter, r *http.Request) {
	var req dictationRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("text is required"))
		return
	}

	id, err := s.ingest.Dictation(req.Text)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"status": "queued",
	})
}

func (s *daemonServer) handleIngestSlack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBundleBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.cfg.SlackSigningSecret != "" {
		err := ingest.VerifySlackSignature(
			s.cfg.SlackSigningSecret,
			body,
			r.Header.Get("X-Slack-Request-Timestamp"),
			r.Header.Get("X-Slack-Signature"),
			time.Now(),
		)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err)
			return
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid event payload"))
		return
	}

	// Slack sends a one-time handshake when the events URL is configured.
	if payload["type"] == "url_verification" {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"challenge": payload["challenge"],
		})
		return
	}

	id, err := s.ingest.SlackEvent(payload)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id": id,
		"ok": true,
	})
}

func (s *daemonServer) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.review.Queue()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []review.QueueItem{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

func (s *daemonServer) handleReviewApproved(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.review.RecentlyApproved()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if tasks == nil {
		tasks = []record.Record{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
	})
}

func (s *daemonServer) handleReviewApprove(w http.ResponseWriter, r *http.Request) {
	task, alreadyApproved, err := s.review.Approve(r.PathValue("id"))
	if err != nil {
		s.writeError(w, reviewErrorStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"task":             task,
		"already_approved": alreadyApproved,
	})
}

func (s *daemonServer) handleReviewReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.review.Reject(id); err != nil {
		s.writeError(w, reviewErrorStatus(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"status": domain.CandidateStatusRejected,
	})
}

func reviewErrorStatus(err error) int {
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *daemonServer) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := merge.Export(s.store)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// readBundle extracts the bundle bytes and override choices from an
// import request. Accepts multipart form uploads (file field "file",
// optional "overrides" JSON field) or a raw JSON body.
func (s *daemonServer) readBundle(r *http.Request) (*record.Bundle, merge.Overrides, error) {
	var data []byte

	contentType := r.Header.Get("Content-Type")
	var overridesJSON string
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBundleBytes); err != nil {
			return nil, nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, fmt.Errorf("missing bundle file: %w", err)
		}
		defer file.Close()
		data, err = io.ReadAll(io.LimitReader(file, maxBundleBytes))
		if err != nil {
			return nil, nil, err
		}
		overridesJSON = r.FormValue("overrides")
	} else {
		var err error
		data, err = io.ReadAll(io.LimitReader(r.Body, maxBundleBytes))
		if err != nil {
			return nil, nil, err
		}
	}

	bundle, err := record.ParseBundle(data)
	if err != nil {
		return nil, nil, err
	}

	var overrides merge.Overrides
	if overridesJSON != "" {
		if err := json.Unmarshal([]byte(overridesJSON), &overrides); err != nil {
			return nil, nil, fmt.Errorf("invalid overrides: %w", err)
		}
		if err := merge.ValidateOverrides(overrides); err != nil {
			return nil, nil, err
		}
	}

	return bundle, overrides, nil
}

func (s *daemonServer) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	bundle, _, err := s.readBundle(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	preview, err := merge.BuildPreview(s.store, bundle)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, preview)
}

func (s *daemonServer) handleImport(w http.ResponseWriter, r *http.Request) {
	bundle, overrides, err := s.readBundle(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := merge.Commit(s.store, bundle, overrides)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": importMessage(result),
		"counts":  result.Counts,
	})
}

// importMessage summarizes a committed import, non-empty collections only.
func importMessage(result *merge.Result) string {
	parts := make([]string, 0, len(domain.Collections))
	for _, collection := range domain.Collections {
		counts := result.Counts[collection]
		if counts.Inserted == 0 && counts.Merged == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %d inserted, %d merged", collection, counts.Inserted, counts.Merged))
	}
	if len(parts) == 0 {
		return "import committed: no records"
	}
	return "import committed: " + strings.Join(parts, "; ")
}
