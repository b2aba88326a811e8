package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/forgekeeper/internal/metrics"
	"github.com/loykin/forgekeeper/internal/model"
	"github.com/loykin/forgekeeper/internal/pipeline"
)

// Service is the part of pipeline.Service the HTTP API drives.
type Service interface {
	Dispatch(op pipeline.Operation, req model.Request) error
	RunServerCommand(line string) error
	Snapshot() pipeline.Snapshot
}

// Sampler exposes the latest resource sample of the managed process.
type Sampler interface {
	Last() *metrics.Sample
}

// Router provides embeddable HTTP handlers for the agent.
// Endpoints:
//
//	POST {basePath}/install   body: {server, task}
//	POST {basePath}/mods      body: {server, task}
//	POST {basePath}/start     body: {server, task}
//	POST {basePath}/stop      body: {server, task}
//	POST {basePath}/kill      body: {server, task}
//	POST {basePath}/command   body: {"command": "..."}
//	GET  {basePath}/status
//	GET  /metrics             when metrics are enabled
//
// Operations are accepted with 202 and run in the background; their outcome
// is reported to the controller, not in the response.
type Router struct {
	svc      Service
	sampler  Sampler
	basePath string
	metrics  bool
}

// Option customizes a Router.
type Option func(*Router)

// WithSampler adds resource usage to the status response.
func WithSampler(s Sampler) Option { return func(r *Router) { r.sampler = s } }

// WithMetrics serves the Prometheus handler at /metrics.
func WithMetrics() Option { return func(r *Router) { r.metrics = true } }

// NewRouter constructs a Router. basePath "/api" results in /api/start etc.
func NewRouter(svc Service, basePath string, opts ...Option) *Router {
	r := &Router{svc: svc, basePath: sanitizeBase(basePath)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/install", r.operation(pipeline.OpInstallForge))
	group.POST("/mods", r.operation(pipeline.OpInstallMods))
	group.POST("/start", r.operation(pipeline.OpStartServer))
	group.POST("/stop", r.operation(pipeline.OpStopServer))
	group.POST("/kill", r.operation(pipeline.OpKillServer))
	group.POST("/command", r.handleCommand)
	group.GET("/status", r.handleStatus)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer wraps the router in an *http.Server listening on addr. The
// caller starts it with ListenAndServe and stops it with Shutdown.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type acceptedResp struct {
	Accepted  bool               `json:"accepted"`
	Operation pipeline.Operation `json:"operation"`
	TaskID    string             `json:"task_id"`
}

type commandReq struct {
	Command string `json:"command"`
}

type statusResp struct {
	pipeline.Snapshot
	Resources *metrics.Sample `json:"resources,omitempty"`
}

func (r *Router) operation(op pipeline.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
		if err := r.svc.Dispatch(op, req); err != nil {
			writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusAccepted, acceptedResp{Accepted: true, Operation: op, TaskID: req.Task.ID})
	}
}

func (r *Router) handleCommand(c *gin.Context) {
	var body commandReq
	if err := c.ShouldBindJSON(&body); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.svc.RunServerCommand(body.Command); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := statusResp{Snapshot: r.svc.Snapshot()}
	if r.sampler != nil && resp.Current != nil {
		resp.Resources = r.sampler.Last()
	}
	writeJSON(c, http.StatusOK, resp)
}
