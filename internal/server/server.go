package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parking-engine/internal/logging"
	"parking-engine/internal/parking"
)

type Server struct {
	httpServer *http.Server
	handler    *Handler
	hub        *Hub
	router     chi.Router
	stopHub    context.CancelFunc
}

func NewServer(port, serviceName string, lot *parking.InstrumentedParkingLot) (*Server, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(parking.NewCollector(lot.ParkingLot)); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(hubCtx)

	handler := NewHandler(lot, hub, serviceName)

	r := chi.NewRouter()

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)

	r.Get("/health", handler.HealthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	r.Route("/api/parking-lot", func(r chi.Router) {
		r.Post("/allocate", handler.Allocate)
		r.Post("/exit", handler.Exit)
		r.Post("/validate", handler.Validate)
		r.Get("/status", handler.GetStatus)
		r.Get("/tickets/{ticket}", handler.FindByTicket)
		r.Get("/expired", handler.GetExpired)
		r.Get("/passes/{plate}", handler.GetPass)
		r.Get("/ws", handler.StatusFeed)
	})

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		hub:        hub,
		router:     r,
		stopHub:    stopHub,
	}, nil
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	logging.Logger().Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	logging.Logger().Info().Msg("shutting down HTTP server")
	s.stopHub()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) GetAddress() string {
	return fmt.Sprintf("http://localhost%s", s.httpServer.Addr)
}
