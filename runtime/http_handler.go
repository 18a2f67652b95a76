package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
)

// Server exposes the catalog and the dispatcher over HTTP.
type Server struct {
	l          *slog.Logger
	app        *App
	runTimeout time.Duration
	responders *Responders
}

type runRequest struct {
	Inputs  map[string]any `json:"inputs"`
	Context map[string]any `json:"context"`
}

type workflowSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required"`
	Steps       int      `json:"steps"`
}

func NewServer(l *slog.Logger, app *App, runTimeout time.Duration) *Server {
	return &Server{l: l, app: app, runTimeout: runTimeout, responders: NewResponders()}
}

// Responders returns the registry used for workflow-shaped responses, so
// hosts can add their own response types.
func (s *Server) Responders() *Responders {
	return s.responders
}

func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return s.l
		}),
	))

	router.GET("/health", s.handleHealth)
	router.GET("/tools", s.listTools)

	wf := router.Group("/workflows")
	{
		wf.GET("", s.listWorkflows)
		wf.GET("/:name", s.getWorkflow)
		wf.GET("/:name/tool", s.getTool)
		wf.POST("/:name/execute", s.executeWorkflow)
		wf.POST("/:name/render", s.renderWorkflow)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"workflows": s.app.Catalog.Len(),
	})
}

func (s *Server) listTools(c *gin.Context) {
	c.JSON(http.StatusOK, s.app.Catalog.Tools())
}

func (s *Server) listWorkflows(c *gin.Context) {
	summaries := []workflowSummary{}
	for _, name := range s.app.Catalog.Names() {
		w, err := s.app.Catalog.Get(name)
		if err != nil {
			continue
		}
		summaries = append(summaries, workflowSummary{
			Name:        w.Name,
			Description: w.Description,
			Required:    RequiredInputs(w),
			Steps:       len(w.Steps),
		})
	}
	c.JSON(http.StatusOK, summaries)
}

// getWorkflow answers with JSON, or with the serialized definition when
// the client asks for YAML.
func (s *Server) getWorkflow(c *gin.Context) {
	w, ok := s.lookup(c)
	if !ok {
		return
	}

	if c.Query("format") == "yaml" {
		out, err := Serialize(w)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "application/yaml", out)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) getTool(c *gin.Context) {
	w, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Tool(w))
}

func (s *Server) executeWorkflow(c *gin.Context) {
	name := c.Param("name")
	req, ok := s.bindRun(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.runTimeout)
	defer cancel()

	done := make(chan *Execution, 1)
	errc := make(chan error, 1)
	go func() {
		exec, err := s.app.Execute(ctx, name, req.Inputs, req.Context)
		if err != nil {
			errc <- err
			return
		}
		done <- exec
	}()

	select {
	case exec := <-done:
		s.respond(c, exec)
	case err := <-errc:
		s.fail(c, statusFor(err), err)
	case <-ctx.Done():
		s.l.WarnContext(ctx, fmt.Sprintf("Workflow %s exceeded run timeout", name),
			"workflow", name,
			"timeout", s.runTimeout)
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"message": fmt.Sprintf("workflow %s did not finish within %s", name, s.runTimeout),
		})
	}
}

// renderWorkflow produces HTML from the workflow's first render step.
// A workflow that yields no component answers 204.
func (s *Server) renderWorkflow(c *gin.Context) {
	name := c.Param("name")
	req, ok := s.bindRun(c)
	if !ok {
		return
	}

	result, err := s.app.Render(c.Request.Context(), name, req.Inputs, req.Context)
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	if result == nil {
		c.Status(http.StatusNoContent)
		return
	}

	node, err := result.Component(result.Props)
	if err != nil {
		s.fail(c, http.StatusUnprocessableEntity, fmt.Errorf("error invoking component: %w", err))
		return
	}
	var buf bytes.Buffer
	if err := node.Render(&buf); err != nil {
		s.fail(c, http.StatusInternalServerError, fmt.Errorf("error rendering component: %w", err))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// respond honours a response spec left in the context under ResponseKey
// and falls back to the run report.
func (s *Server) respond(c *gin.Context, exec *Execution) {
	spec, err := exec.Map(ResponseKey)
	if err != nil {
		c.JSON(http.StatusOK, exec.Report())
		return
	}

	kind, _ := spec["type"].(string)
	if kind == "" {
		kind = "json"
	}
	responder, ok := s.responders.Get(kind)
	if !ok {
		s.fail(c, http.StatusInternalServerError, fmt.Errorf("unknown response type %q", kind))
		return
	}
	if err := responder.Respond(c, exec, spec); err != nil {
		s.fail(c, http.StatusInternalServerError, fmt.Errorf("error writing %s response: %w", kind, err))
	}
}

func (s *Server) lookup(c *gin.Context) (*Workflow, bool) {
	w, err := s.app.Catalog.Get(c.Param("name"))
	if err != nil {
		s.fail(c, statusFor(err), err)
		return nil, false
	}
	return w, true
}

// bindRun accepts an empty body as a run with no inputs.
func (s *Server) bindRun(c *gin.Context) (runRequest, bool) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
		return req, false
	}
	return req, true
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.l.ErrorContext(c.Request.Context(), "Request failed",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err.Error())
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownWorkflow):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
