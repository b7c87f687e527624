package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"tagexceptions/src/auth"
	"tagexceptions/src/handler"
)

// Routes holds what the HTTP surface is served from.
type Routes struct {
	Dispatcher handler.RequestDispatcher
	History    handler.Historian
	Gatherer   prometheus.Gatherer
}

func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(auth.RequesterMiddleware)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	if routes.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(routes.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/invoke", handler.InvokeHandler(routes.Dispatcher))
	r.Route("/exceptions", func(r chi.Router) {
		r.Get("/", handler.ExceptionHistoryHandler(routes.History))
		r.Post("/", handler.CreateExceptionHandler(routes.Dispatcher))
		r.Post("/revoke", handler.RevokeExceptionHandler(routes.Dispatcher))
	})

	return r
}

// StartServer serves h until SIGINT or SIGTERM, then shuts down gracefully.
func StartServer(port string, h http.Handler) {
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
