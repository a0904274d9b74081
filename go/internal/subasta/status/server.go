// Package status serves the console's health and live state over HTTP.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/subastafrutas/console/go/internal/subasta/detail"
	"github.com/subastafrutas/console/go/internal/subasta/events"
)

// BusState is the read side of the global event bus.
type BusState interface {
	Connected() bool
	Changes() uint64
	Latest(t events.Type) (events.Event, bool)
}

// ViewState is the read side of an open auction view.
type ViewState interface {
	Snapshot() detail.Snapshot
}

// Config holds status server configuration
type Config struct {
	Port           string
	AllowedOrigins []string
}

// DefaultConfig returns default status server configuration
func DefaultConfig() Config {
	return Config{
		Port:           "8090",
		AllowedOrigins: []string{"*"},
	}
}

// Response is the body of GET /status.
type Response struct {
	Connected bool                         `json:"conectado"`
	Changes   uint64                       `json:"cambios"`
	Events    map[events.Type]events.Event `json:"eventos"`
	Views     []detail.Snapshot            `json:"subastas"`
}

type Server struct {
	config Config
	bus    BusState
	server *http.Server

	mu        sync.RWMutex
	views     map[int64]attachment
	nextToken uint64
	relay     RelayState
}

// attachment pairs a view with the token handed out when it was attached.
type attachment struct {
	token uint64
	view  ViewState
}

func NewServer(config Config, bus BusState) *Server {
	s := &Server{
		config: config,
		bus:    bus,
		views:  make(map[int64]attachment),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// AttachView exposes an open auction view until the returned func is called.
func (s *Server) AttachView(auctionID int64, v ViewState) func() {
	s.mu.Lock()
	s.nextToken++
	token := s.nextToken
	s.views[auctionID] = attachment{token: token, view: v}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.views[auctionID]; ok && cur.token == token {
			delete(s.views, auctionID)
		}
	}
}

// Handler returns the routes wrapped with CORS and h2c.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /status/subastas/{id}", s.handleView)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// ListenAndServe blocks until the server stops. A graceful Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("status server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Warn().Err(err).Msg("failed to write health check response")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := Response{
		Events: make(map[events.Type]events.Event),
		Views:  []detail.Snapshot{},
	}
	if s.bus != nil {
		resp.Connected = s.bus.Connected()
		resp.Changes = s.bus.Changes()
		for _, t := range events.GlobalTypes {
			if ev, ok := s.bus.Latest(t); ok {
				resp.Events[t] = ev
			}
		}
	}

	s.mu.RLock()
	ids := make([]int64, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		resp.Views = append(resp.Views, s.views[id].view.Snapshot())
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid auction id"})
		return
	}

	s.mu.RLock()
	a, ok := s.views[id]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "auction view not open"})
		return
	}
	writeJSON(w, http.StatusOK, a.view.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to write status response")
	}
}
