// Package server exposes the job manager over HTTP and a Socket.IO endpoint
// that pushes live task graphs to the web UI.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/josephgoksu/quill/internal/config"
	"github.com/josephgoksu/quill/internal/jobs"
	"github.com/josephgoksu/quill/internal/policy"
)

// APIVersion is reported by /api/ping.
const APIVersion = "1.0.0"

// Options configures a Server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// PollInterval paces the fallback check of task files.
	PollInterval time.Duration
	// Audit serves /api/decisions. May be nil.
	Audit  *policy.AuditStore
	Logger *slog.Logger
}

type Server struct {
	jobs     *jobs.Manager
	audit    *policy.AuditStore
	origins  map[string]struct{}
	logger   *slog.Logger
	hub      *Hub
	monitor  *Monitor
	upgrader websocket.Upgrader
	eio      *engineIO
	server   *http.Server

	unsubscribe func()
}

func New(m *jobs.Manager, opts Options) (*Server, error) {
	if m == nil {
		return nil, errors.New("server: job manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = config.DefaultPollInterval
	}
	if opts.Addr == "" {
		opts.Addr = fmt.Sprintf("%s:%d", config.DefaultHost, config.DefaultPort)
	}

	s := &Server{
		jobs:    m,
		audit:   opts.Audit,
		origins: make(map[string]struct{}, len(opts.AllowedOrigins)),
		logger:  opts.Logger,
	}
	for _, o := range opts.AllowedOrigins {
		s.origins[o] = struct{}{}
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
	s.monitor = NewMonitor(m.Results(), opts.PollInterval, s.pushGraph, opts.Logger)
	s.hub = newHub(opts.Logger, s.monitor)
	s.eio = newEngineIO(&s.upgrader, opts.Logger, s.onSocketMessage, s.onSocketClose)
	s.unsubscribe = m.Subscribe(s.onJobEvent)

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.registerRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.monitor.Start()
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.server.Addr }

func (s *Server) Start(wg *sync.WaitGroup, errChan chan<- error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Info("API server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()
}

// Shutdown stops accepting requests, closes socket sessions and the file
// monitor.
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	// Pending polls return once their session is closed.
	s.eio.closeAll()
	err := s.server.Shutdown(ctx)
	return errors.Join(err, s.monitor.Close())
}
