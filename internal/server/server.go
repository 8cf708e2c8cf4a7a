// Package server assembles the HTTP API: routing, middleware and the
// graceful-shutdown loop.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/facturio/facturio/internal/handlers"
	"github.com/facturio/facturio/internal/httpx"
	"github.com/facturio/facturio/internal/logger"
	"github.com/facturio/facturio/internal/services"
	"github.com/facturio/facturio/internal/storage"
)

// App is the top-level HTTP handler with all routes configured.
type App struct {
	mux *http.ServeMux
	log zerolog.Logger
}

// NewApp wires the services and registers every route.
func NewApp(db *gorm.DB, uploader storage.Uploader, source services.TransactionSource) *App {
	app := &App{
		mux: http.NewServeMux(),
		log: logger.WithComponent("http"),
	}

	lifecycle := services.NewLifecycleService(db, uploader)
	matching := services.NewMatchingService(db)

	ih := handlers.NewInvoiceHandler(lifecycle)
	ph := handlers.NewPaymentHandler(matching, source)

	app.mux.HandleFunc("GET /healthz", app.healthz)

	app.mux.HandleFunc("POST /api/invoices", ih.Create)
	app.mux.HandleFunc("GET /api/invoices", ih.List)
	app.mux.HandleFunc("GET /api/invoices/{id}", ih.Get)
	app.mux.HandleFunc("PUT /api/invoices/{id}", ih.Update)
	app.mux.HandleFunc("POST /api/invoices/{id}/validate", ih.Validate)
	app.mux.HandleFunc("POST /api/invoices/{id}/send", ih.Send)
	app.mux.HandleFunc("POST /api/invoices/{id}/cancel", ih.Cancel)
	app.mux.HandleFunc("POST /api/invoices/{id}/credit-note", ih.CreditNote)
	app.mux.HandleFunc("GET /api/invoices/{id}/audit", ih.AuditTrail)
	app.mux.HandleFunc("GET /api/invoices/{id}/payments", ph.ListForInvoice)

	app.mux.HandleFunc("POST /api/payments/sync", ph.Sync)
	app.mux.HandleFunc("POST /api/payments/{id}/confirm", ph.Confirm)
	app.mux.HandleFunc("POST /api/payments/{id}/reject", ph.Reject)

	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.withLogging(a.mux).ServeHTTP(w, r)
}

func (a *App) healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withLogging logs one line per request.
func (a *App) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Run serves the app on addr until SIGINT/SIGTERM, then drains connections
// for up to 10 seconds.
func Run(addr string, handler http.Handler) error {
	log := logger.WithComponent("server")
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	log.Info().Msg("server stopped gracefully")
	return nil
}
