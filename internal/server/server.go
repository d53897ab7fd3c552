// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package server provides an optional HTTP+WebSocket status API: a
// minimal surface for external observers to read profile/catalog
// state and subscribe to event-bus topics, plus Prometheus metrics.
// It is not a rendered dashboard.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coomerdl/coomerdl/pkg/eventbus"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
	"github.com/coomerdl/coomerdl/pkg/profile"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	Port           int
	DataDir        string // per-profile catalog JSON root
	DownloadDir    string // download tree root, one level above service/username
	MaxConcurrent  int64
	Strict         bool
	ClientOpts     httpclient.Options
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        "0.0.0.0",
		Port:        8080,
		DataDir:     "./data",
		DownloadDir: "./downloads",
	}
}

// Server is the status/metrics HTTP server.
type Server struct {
	config     Config
	httpServer *http.Server
	bus        *eventbus.Bus
	mgr        *profile.Manager
	registry   *pipelineRegistry
	wsHub      *WSHub
	poller     *metricsPoller
}

// New creates a new server with the given configuration.
func New(cfg Config) *Server {
	bus := eventbus.New()
	client := newHTTPClient(cfg.ClientOpts)
	registry := newRegistry(cfg, bus, client)
	mgr := profile.New(client, cfg.ClientOpts, cfg.DataDir, bus)

	s := &Server{
		config:   cfg,
		bus:      bus,
		mgr:      mgr,
		registry: registry,
		wsHub:    NewWSHub(),
		poller:   newMetricsPoller(registry),
	}
	return s
}

// ListenAndServe starts the HTTP server and blocks until ctx is
// cancelled, then shuts down the server, the metrics poller and every
// open pipeline gracefully. The WebSocket hub's loop is not stopped.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.registry.mu.Lock()
	s.registry.baseCtx = ctx
	s.registry.mu.Unlock()

	go s.wsHub.Run()
	s.poller.Start()

	unsub := s.bus.Subscribe(eventbus.TopicProfileUpdate, func(ev eventbus.Event) {
		s.wsHub.BroadcastEvent(ev)
	})
	defer unsub()

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	addr := fmt.Sprintf("%s:%d", s.config.Addr, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.corsMiddleware(s.loggingMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("[server] listening on http://%s", addr)
	log.Printf("[server] status API: http://%s/api", addr)
	log.Printf("[server] metrics:    http://%s/metrics", addr)

	err := s.httpServer.ListenAndServe()

	s.poller.Stop()
	s.registry.CloseAll()

	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/profiles", s.handleListProfiles)
	mux.HandleFunc("POST /api/profiles/{service}/{username}/refresh", s.handleRefreshProfile)
	mux.HandleFunc("POST /api/profiles/{service}/{username}/open", s.handleOpenProfile)
	mux.HandleFunc("POST /api/profiles/{service}/{username}/close", s.handleCloseProfile)
	mux.HandleFunc("GET /api/profiles/{service}/{username}/catalog", s.handleGetCatalog)
	mux.HandleFunc("DELETE /api/profiles/{service}/{username}", s.handleDeleteProfile)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[server] %s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := len(s.config.AllowedOrigins) == 0
			for _, o := range s.config.AllowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
