package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/ritzau/filestatus/pkg/analysis"
	"github.com/ritzau/filestatus/pkg/filestatus"
	"github.com/ritzau/filestatus/pkg/logging"
	"github.com/ritzau/filestatus/pkg/model"
	"github.com/ritzau/filestatus/pkg/pubsub"
	"github.com/ritzau/filestatus/pkg/store"
)

// SummaryResponse describes the current analysis job
type SummaryResponse struct {
	Workspace     string             `json:"workspace"`
	Project       string             `json:"project"`
	PullRequest   bool               `json:"pullRequest"`
	FirstAnalysis bool               `json:"firstAnalysis"`
	BaseAnalysis  *store.Analysis    `json:"baseAnalysis,omitempty"`
	Recorded      *store.Analysis    `json:"recorded,omitempty"`
	Files         int                `json:"files"`
	Summary       filestatus.Summary `json:"summary"`
	FinishedAt    time.Time          `json:"finishedAt"`
	DurationMs    int64              `json:"durationMs"`
}

// Server serves the results of the latest finished analysis job
type Server struct {
	router    *mux.Router
	workspace string
	result    atomic.Pointer[analysis.Result]
	publisher pubsub.Publisher
}

// NewServer creates a new web server
func NewServer(workspace string) *Server {
	ssePublisher := pubsub.NewSSEPublisher()

	// Configure topic buffering
	// workspace_status: buffer last 10 events, replay only last event to new subscribers
	ssePublisher.ConfigureTopic(pubsub.TopicWorkspaceStatus, pubsub.TopicConfig{
		BufferSize: 10,
		ReplayAll:  false,
	})

	// analysis: replay the latest finished job
	ssePublisher.ConfigureTopic(pubsub.TopicAnalysis, pubsub.TopicConfig{
		BufferSize: 1,
		ReplayAll:  false,
	})

	s := &Server{
		router:    mux.NewRouter(),
		workspace: workspace,
		publisher: ssePublisher,
	}
	s.setupRoutes()
	return s
}

// SetResult makes a finished job visible to queries and announces it.
// Only initialized results are ever stored, so readers never observe a
// job before its classification is complete.
func (s *Server) SetResult(res *analysis.Result, reason string) {
	s.result.Store(res)

	event := pubsub.AnalysisFinished{
		Reason:               reason,
		Files:                len(res.Index.Files()),
		Skipped:              res.Summary.Skipped,
		MarkedAsUnchanged:    res.Summary.MarkedAsUnchanged,
		NotMarkedAsUnchanged: res.Summary.NotMarkedAsUnchanged,
		TrustBroken:          res.Summary.TrustBroken,
		BrokenAt:             res.Summary.BrokenAt,
		DurationMs:           res.Duration.Milliseconds(),
	}
	if err := s.publisher.Publish(pubsub.TopicAnalysis, "finished", event); err != nil {
		logging.Warn("failed to publish analysis", "error", err)
	}
}

// Result returns the latest finished job, or nil
func (s *Server) Result() *analysis.Result {
	return s.result.Load()
}

// PublishStatus publishes a workspace status event
func (s *Server) PublishStatus(state, message string, step, total int) {
	status := pubsub.WorkspaceStatus{
		State:   state,
		Message: message,
		Step:    step,
		Total:   total,
	}
	if err := s.publisher.Publish(pubsub.TopicWorkspaceStatus, state, status); err != nil {
		logging.Warn("failed to publish workspace status", "error", err)
	}
}

// Handler returns the HTTP handler. Every route logs through RequestIDMiddleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	s.router.HandleFunc("/api/summary", s.handleSummary).Methods("GET")
	s.router.HandleFunc("/api/files", s.handleFiles).Methods("GET")
	s.router.HandleFunc("/api/files/{uuid}", s.handleFile).Methods("GET")
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if topic != pubsub.TopicWorkspaceStatus && topic != pubsub.TopicAnalysis {
		http.Error(w, fmt.Sprintf("Unknown topic: %s", topic), http.StatusNotFound)
		return
	}

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, _ := w.(http.Flusher)

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	if flusher != nil {
		flusher.Flush()
	}

	// Stream events
	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.WarnContext(r.Context(), "error writing SSE event", "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	res := s.result.Load()
	if res == nil {
		http.Error(w, "Analysis not available", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, r, SummaryResponse{
		Workspace:     s.workspace,
		Project:       res.Metadata.ProjectKey(),
		PullRequest:   res.Metadata.IsPullRequest(),
		FirstAnalysis: res.Metadata.IsFirstAnalysis(),
		BaseAnalysis:  res.Metadata.BaseAnalysis(),
		Recorded:      res.Recorded,
		Files:         len(res.Index.Files()),
		Summary:       res.Summary,
		FinishedAt:    res.FinishedAt,
		DurationMs:    res.Duration.Milliseconds(),
	})
}

// handleFiles lists every file. ?status=same|changed|added and
// ?unchanged=true narrow the list. ?path= answers for a single file.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	res := s.result.Load()
	if res == nil {
		http.Error(w, "Analysis not available", http.StatusServiceUnavailable)
		return
	}

	if p := r.URL.Query().Get("path"); p != "" {
		c, ok := res.Index.ByPath(p)
		if !ok || !c.IsFile() {
			http.Error(w, fmt.Sprintf("File not found: %s", p), http.StatusNotFound)
			return
		}
		s.writeFile(w, r, res, c)
		return
	}

	var wantStatus model.Status
	if q := r.URL.Query().Get("status"); q != "" {
		status, err := model.ParseStatus(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		wantStatus = status
	}
	onlyUnchanged := r.URL.Query().Get("unchanged") == "true"

	views, err := res.Files()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	filtered := make([]analysis.FileView, 0, len(views))
	for _, v := range views {
		if wantStatus != "" && v.Status != wantStatus {
			continue
		}
		if onlyUnchanged && !v.DataUnchanged {
			continue
		}
		filtered = append(filtered, v)
	}

	writeJSON(w, r, filtered)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	res := s.result.Load()
	if res == nil {
		http.Error(w, "Analysis not available", http.StatusServiceUnavailable)
		return
	}

	id := mux.Vars(r)["uuid"]
	c, ok := res.Index.ByUUID(id)
	if !ok {
		http.Error(w, fmt.Sprintf("Component not found: %s", id), http.StatusNotFound)
		return
	}

	s.writeFile(w, r, res, c)
}

func (s *Server) writeFile(w http.ResponseWriter, r *http.Request, res *analysis.Result, c *model.Component) {
	view, err := res.File(c)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, view)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WarnContext(r.Context(), "failed to encode response", "error", err)
	}
}

// maxConnections caps concurrent clients, open event streams included
const maxConnections = 256

// Start serves on the given port until ctx is canceled
func (s *Server) Start(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		// Ends open SSE streams before shutting down
		s.publisher.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
	if err := srv.Serve(netutil.LimitListener(ln, maxConnections)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends all event streams
func (s *Server) Close() error {
	return s.publisher.Close()
}
