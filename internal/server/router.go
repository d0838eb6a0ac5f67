package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/runkeeper/internal/supervisor"
)

// Controller is the supervisor surface exposed over HTTP.
type Controller interface {
	Start() error
	Stop() error
	Restart() error
	State() supervisor.State
	Snapshot() supervisor.Status
}

// Router provides embeddable HTTP handlers for controlling the runner.
// Endpoints:
//
//	GET  {basePath}/status         {"status":"running"}
//	GET  {basePath}/status/detail  supervisor snapshot
//	POST {basePath}/start          {"status":"<state after op>"}
//	POST {basePath}/stop           {"status":"<state after op>"}
//	POST {basePath}/restart        {"status":"<state after op>"}
//
// Unknown routes answer 404 and handler panics 500, both as {"error":"..."}.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctl      Controller
	basePath string
	log      *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/stop, /api/status.
func NewRouter(ctl Controller, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{ctl: ctl, basePath: sanitizeBase(basePath), log: log.With("component", "http")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		r.log.Error("handler panic", "path", c.Request.URL.Path, "panic", fmt.Sprint(rec))
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: fmt.Sprintf("internal error: %v", rec)})
		c.Abort()
	}))
	g.NoRoute(func(c *gin.Context) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "not found: " + c.Request.Method + " " + c.Request.URL.Path})
	})
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/status/detail", r.handleDetail)
	group.POST("/start", r.operation("start", r.ctl.Start))
	group.POST("/stop", r.operation("stop", r.ctl.Stop))
	group.POST("/restart", r.operation("restart", r.ctl.Restart))
	return g
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type statusResp struct {
	Status string `json:"status"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, statusResp{Status: r.ctl.State().String()})
}

func (r *Router) handleDetail(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctl.Snapshot())
}

// operation runs fn and reports the resulting state. Operation errors are
// visible through that state and the log, not the HTTP status.
func (r *Router) operation(name string, fn func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(); err != nil {
			r.log.Warn("operation failed", "op", name, "error", err)
		}
		writeJSON(c, http.StatusOK, statusResp{Status: r.ctl.State().String()})
	}
}

// NewServer returns an http.Server for h with the daemon's timeouts.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ListenAndServe serves srv until ctx is cancelled, then shuts it down
// gracefully within shutdownTimeout.
func ListenAndServe(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
