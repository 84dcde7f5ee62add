// Package server exposes the reminder run over HTTP for external schedulers.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/hray3182/reminder-engine/internal/alert"
	"github.com/hray3182/reminder-engine/internal/generator"
)

type Runner interface {
	RunOnce(ctx context.Context) (generator.Summary, error)
}

type Config struct {
	// Secret, when set, must be presented as "Authorization: Bearer <secret>".
	Secret        string
	RatePerMinute int
	RunTimeout    time.Duration
}

type Server struct {
	runner  Runner
	alerter alert.Alerter
	log     logrus.FieldLogger
	secret  []byte
	limiter *rate.Limiter
	timeout time.Duration
}

func New(runner Runner, cfg Config, log logrus.FieldLogger, alerter alert.Alerter) *Server {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 12
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	if alerter == nil {
		alerter = alert.Nop{}
	}
	return &Server{
		runner:  runner,
		alerter: alerter,
		log:     log.WithField("component", "http"),
		secret:  []byte(cfg.Secret),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1),
		timeout: cfg.RunTimeout,
	}
}

func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.log, NoColor: true}))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Group(func(r chi.Router) {
		r.Use(s.authorize)
		r.Get("/cron/reminders", s.handleRun)
		r.Post("/cron/reminders", s.handleRun)
	})
	return router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secret) > 0 {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), s.secret) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	summary, err := s.runner.RunOnce(ctx)
	if err != nil {
		s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("Reminder run failed")
	}
	if alert.ShouldAlert(summary, err) {
		s.alerter.RunFailed(context.WithoutCancel(ctx), summary, err)
	}
	writeJSON(w, statusCode(summary), summary)
}

func statusCode(summary generator.Summary) int {
	switch summary.Status {
	case generator.StatusSuccess:
		return http.StatusOK
	case generator.StatusCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
