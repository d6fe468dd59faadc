package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/voteguard/voteguard/api"
	"github.com/voteguard/voteguard/config"
	"github.com/voteguard/voteguard/storage"
)

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	store   storage.Store
	handler *api.Handler
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Database.URL, cfg.Database.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &Server{
		config:  cfg,
		store:   store,
		handler: api.NewHandler(cfg, store),
	}, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting voter roll audit service on %s", s.config.ListenAddr)
	if s.config.Database.URL != "" {
		log.Println("PostgreSQL storage configured")
	} else {
		log.Printf("SQLite storage at %s", s.config.Database.SQLitePath)
	}
	if s.config.Detection.EnableStatistical {
		log.Println("Statistical ghost detection enabled")
	} else {
		log.Println("Rule-based ghost detection enabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthCheck)
	mux.Handle("/api/", s.handler)

	// Analysis of large rolls can take a while, so the write timeout is
	// generous compared to the read timeout.
	server := &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// healthCheck provides a simple health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"healthy","service":"VoteGuard Audit Service"}`)); err != nil {
		log.Printf("Failed to write health check response: %v", err)
	}
}

// StartWithErrorHandling starts the server with proper error handling
func (s *Server) StartWithErrorHandling() {
	if err := s.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// Close closes the server and cleans up resources
func (s *Server) Close() error {
	if s.handler != nil {
		if err := s.handler.Close(); err != nil {
			return err
		}
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
