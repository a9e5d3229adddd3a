// Package server exposes annotation sessions over HTTP and WebSocket.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/turnmark/internal/corpus"
	"github.com/raphaelgruber/turnmark/internal/export"
	"github.com/raphaelgruber/turnmark/internal/metrics"
	"github.com/raphaelgruber/turnmark/internal/models"
	"github.com/raphaelgruber/turnmark/internal/service"
	"github.com/raphaelgruber/turnmark/internal/vocab"
)

// ErrConversationBusy is returned when a second session tries to open a
// conversation that is already being edited.
var ErrConversationBusy = service.ErrConversationBusy

// Deps are the collaborators of the server. Catalog and Vocab may be nil.
type Deps struct {
	Service  *service.AnnotationService
	Catalog  *corpus.Catalog
	Vocab    *vocab.Vocabulary
	Sessions *service.SessionRegistry
	Metrics  *metrics.Collector
	Logger   *slog.Logger
}

// Server serves the annotation API.
type Server struct {
	svc      *service.AnnotationService
	catalog  *corpus.Catalog
	vocab    *vocab.Vocabulary
	sessions *service.SessionRegistry
	metrics  *metrics.Collector
	logger   *slog.Logger

	upgrader     websocket.Upgrader
	pingInterval time.Duration

	connMu sync.Mutex
	conns  map[*wsSession]struct{}
	connWG sync.WaitGroup
}

// New creates a server. A nil Sessions registry or Metrics collector is
// replaced by a fresh one.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = service.NewSessionRegistry()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.NewCollector()
	}
	v := deps.Vocab
	if v == nil {
		v = &vocab.Vocabulary{Intents: vocab.NewList(), SlotKeys: vocab.NewList()}
	}

	return &Server{
		svc:      deps.Service,
		catalog:  deps.Catalog,
		vocab:    v,
		sessions: sessions,
		metrics:  mc,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local annotation UIs
			},
		},
		pingInterval: 30 * time.Second,
		conns:        make(map[*wsSession]struct{}),
	}
}

// Handler returns the routed, logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /export.csv", s.handleExport)
	mux.HandleFunc("GET /conversations", s.handleConversations)
	mux.HandleFunc("GET /vocab/{kind}", s.handleVocab)
	mux.HandleFunc("GET /ws", s.handleWS)
	return LoggingMiddleware(s.logger)(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store().Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

type statsResponse struct {
	metrics.Snapshot
	Sessions []service.Session `json:"sessions"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Snapshot: s.metrics.Snapshot(),
		Sessions: s.sessions.List(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var buf bytes.Buffer
	stats, err := export.WriteStore(r.Context(), &buf, s.svc.Store())
	s.metrics.Observe(metrics.OpExport, start, err)
	if err != nil {
		s.logger.Error("export failed", "error", err)
		http.Error(w, "export failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="annotations.csv"`)
	w.Header().Set("X-Export-Rows", strconv.Itoa(stats.Rows))
	_, _ = buf.WriteTo(w)
}

// ConversationInfo is one entry of GET /conversations.
type ConversationInfo struct {
	models.Conversation
	Annotated bool `json:"annotated"`
	Busy      bool `json:"busy"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	keys, err := s.svc.Store().List(r.Context())
	if err != nil {
		s.logger.Error("list annotations failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	annotated := make(map[models.ConversationKey]bool, len(keys))
	for _, k := range keys {
		annotated[k] = true
	}
	busy := make(map[models.ConversationKey]bool)
	for _, sess := range s.sessions.List() {
		busy[sess.Key] = true
	}

	out := []ConversationInfo{}
	if s.catalog != nil {
		for _, conv := range s.catalog.All() {
			out = append(out, ConversationInfo{Conversation: conv, Annotated: annotated[conv.Key], Busy: busy[conv.Key]})
		}
	} else {
		for _, k := range keys {
			out = append(out, ConversationInfo{Conversation: models.Conversation{Key: k}, Annotated: true, Busy: busy[k]})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVocab(w http.ResponseWriter, r *http.Request) {
	var list *vocab.List
	switch r.PathValue("kind") {
	case "intents":
		list = s.vocab.Intents
	case "slot-keys":
		list = s.vocab.SlotKeys
	default:
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, list.Suggest(r.URL.Query().Get("prefix")))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
