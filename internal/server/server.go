// Package server exposes the run trigger and the review API over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/klimkalender/klimkalender-cms/internal/utils"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/metrics"
	"github.com/klimkalender/klimkalender-cms/pkg/reconcile"
	"github.com/klimkalender/klimkalender-cms/pkg/storage"
)

// Store is what the read endpoints need from the database.
type Store interface {
	LastRun(ctx context.Context, runType string) (*storage.Run, error)
	ListRuns(ctx context.Context, runType string, limit int) ([]storage.Run, error)
	ListLogs(ctx context.Context, actionID int64) ([]storage.LogLine, error)
	ListWasmEvents(ctx context.Context) ([]event.WasmEvent, error)
}

type Actions interface {
	Apply(ctx context.Context, wasmID int64, action reconcile.Action) (*event.WasmEvent, error)
}

// TriggerFunc performs one pipeline run.
type TriggerFunc func(ctx context.Context) error

type Options struct {
	Username string
	Password string
	Token    string
	// TriggerEvery spaces accepted trigger calls; 0 disables the limit.
	TriggerEvery time.Duration
	RunType      string
}

type Server struct {
	Store   Store
	Actions Actions
	Trigger TriggerFunc

	username string
	password string
	token    string
	runType  string
	limiter  *rate.Limiter
}

func New(store Store, actions Actions, trigger TriggerFunc, opts Options) *Server {
	limit := rate.Inf
	if opts.TriggerEvery > 0 {
		limit = rate.Every(opts.TriggerEvery)
	}
	runType := opts.RunType
	if runType == "" {
		runType = "BOULDERBOT"
	}
	return &Server{
		Store:    store,
		Actions:  actions,
		Trigger:  trigger,
		username: opts.Username,
		password: opts.Password,
		token:    opts.Token,
		runType:  runType,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/boulderbot", s.auth(s.handleTrigger))
	mux.HandleFunc("GET /api/runs", s.auth(s.handleRuns))
	mux.HandleFunc("GET /api/runs/last", s.auth(s.handleLastRun))
	mux.HandleFunc("GET /api/runs/{id}/logs", s.auth(s.handleLogs))
	mux.HandleFunc("GET /api/wasm-events", s.auth(s.handleWasmEvents))
	mux.HandleFunc("POST /api/wasm-events/{id}/action", s.auth(s.handleAction))

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	utils.Log.Infof("Starting server on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// auth accepts a bearer token or basic credentials, whichever is configured.
// With neither configured every request passes.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" && s.username == "" && s.password == "" {
			next(w, r)
			return
		}
		if s.token != "" {
			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && equal(bearer, s.token) {
				next(w, r)
				return
			}
		}
		if s.username != "" || s.password != "" {
			user, pass, ok := r.BasicAuth()
			if ok && equal(user, s.username) && equal(pass, s.password) {
				next(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
