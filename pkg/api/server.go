// Package api exposes the workflow operations over REST: start, status,
// resume, list, cancel. The core's state transitions are reachable only
// through these operations.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recast/pkg/logx"
	"recast/pkg/manager"
	"recast/pkg/metrics"
	"recast/pkg/persistence"
	"recast/pkg/state"
)

// MetricsQuery aggregates recorded metrics for one workflow.
type MetricsQuery interface {
	GetWorkflowMetrics(ctx context.Context, workflowID string) (*metrics.WorkflowMetrics, error)
	GetWorkflowMetricsByModel(ctx context.Context, workflowID string) (map[string]*metrics.WorkflowMetrics, error)
}

// Server wires the HTTP surface to the workflow manager.
type Server struct {
	mgr     *manager.Manager
	store   *persistence.Store
	queries MetricsQuery
	log     *logx.Logger
}

// NewServer creates the REST server. The store may be nil; persisted-state
// fallbacks are then unavailable.
func NewServer(mgr *manager.Manager, store *persistence.Store) *Server {
	return &Server{mgr: mgr, store: store, log: logx.NewLogger("api")}
}

// SetMetricsQuery enables the per-workflow metrics endpoint.
func (s *Server) SetMetricsQuery(q MetricsQuery) {
	s.queries = q
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/refactor", s.startRefactor)
		v1.GET("/status/:id", s.status)
		v1.POST("/resume/:id", s.resume)
		v1.GET("/workflows", s.listWorkflows)
		v1.DELETE("/workflows/:id", s.cancel)
		v1.POST("/workflows/:id/restart", s.restart)
		v1.GET("/workflows/:id/checkpoints", s.listCheckpoints)
		v1.POST("/workflows/:id/rewind/:step", s.rewind)
		v1.GET("/workflows/:id/metrics", s.workflowMetrics)
	}
	return r
}

// Serve runs the server until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// startRequest is the POST /refactor body.
type startRequest struct {
	Goal          string            `json:"goal" binding:"required"`
	Files         []state.FileInput `json:"files" binding:"required"`
	MaxIterations int               `json:"max_iterations"`
}

func (s *Server) startRefactor(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.mgr.Start(req.Goal, req.Files, req.MaxIterations)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": id})
}

func (s *Server) status(c *gin.Context) {
	id := c.Param("id")
	summary, err := s.mgr.Status(id)
	if err == nil {
		c.JSON(http.StatusOK, summary)
		return
	}
	if !errors.Is(err, manager.ErrUnknownWorkflow) || s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	// Not live in this process; fall back to the persisted summary.
	row, serr := s.store.GetWorkflow(c.Request.Context(), id)
	if serr != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}
	items, serr := s.store.ListWorkItems(c.Request.Context(), id)
	if serr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": serr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow": row, "files": items})
}

// resumeRequest is the POST /resume/:id body.
type resumeRequest struct {
	Action   string `json:"action" binding:"required"`
	Feedback string `json:"feedback"`
}

func (s *Server) resume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mgr.Resume(c.Param("id"), req.Action, req.Feedback); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func (s *Server) listWorkflows(c *gin.Context) {
	live := s.mgr.List()
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"workflows": live})
		return
	}
	rows, err := s.store.ListWorkflows(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": live, "persisted": rows})
}

func (s *Server) cancel(c *gin.Context) {
	if err := s.mgr.Cancel(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// restart relaunches a workflow from its latest checkpoint, picking up
// exactly where it suspended (process restarts, post-rewind continuation).
func (s *Server) restart(c *gin.Context) {
	if err := s.mgr.ResumeFromCheckpoint(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "restarted"})
}

func (s *Server) listCheckpoints(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence not configured"})
		return
	}
	list, err := s.store.ListCheckpoints(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoints": list})
}

type rewindResponse struct {
	Step     int    `json:"step"`
	NodeName string `json:"node_name"`
}

func (s *Server) rewind(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "persistence not configured"})
		return
	}
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil || step < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "step must be a positive integer"})
		return
	}
	cp, err := s.store.RewindToStep(c.Request.Context(), c.Param("id"), step)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rewindResponse{Step: cp.Step, NodeName: cp.NodeName})
}

func (s *Server) workflowMetrics(c *gin.Context) {
	if s.queries == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "metrics queries need prometheus_url configured"})
		return
	}
	id := c.Param("id")
	totals, err := s.queries.GetWorkflowMetrics(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	byModel, err := s.queries.GetWorkflowMetricsByModel(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totals": totals, "by_model": byModel})
}
