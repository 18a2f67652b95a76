package runtime

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseKey is the context key a workflow uses to shape its own HTTP
// response, for example {"type": "html", "status": 201, "body": "..."}.
// Without it the execute endpoint answers with the run report.
const ResponseKey = "response"

// Responder writes a run's HTTP response from the workflow's response spec.
type Responder interface {
	Respond(c *gin.Context, exec *Execution, spec map[string]any) error
}

type ResponderFunc func(c *gin.Context, exec *Execution, spec map[string]any) error

func (f ResponderFunc) Respond(c *gin.Context, exec *Execution, spec map[string]any) error {
	return f(c, exec, spec)
}

// Responders maps response types to responders.
type Responders struct {
	byType map[string]Responder
}

// NewResponders registers the json, html and redirect responders.
func NewResponders() *Responders {
	r := &Responders{byType: make(map[string]Responder)}
	r.Register("json", ResponderFunc(respondJSON))
	r.Register("html", ResponderFunc(respondHTML))
	r.Register("redirect", ResponderFunc(respondRedirect))
	return r
}

func (r *Responders) Register(kind string, responder Responder) {
	r.byType[kind] = responder
}

func (r *Responders) Get(kind string) (Responder, bool) {
	responder, ok := r.byType[kind]
	return responder, ok
}

// respondJSON sends spec.body, or the run report when no body is given.
func respondJSON(c *gin.Context, exec *Execution, spec map[string]any) error {
	status, err := statusFrom(spec, http.StatusOK)
	if err != nil {
		return err
	}
	setHeaders(c, spec)

	body, ok := spec["body"]
	if !ok || body == nil {
		c.JSON(status, exec.Report())
		return nil
	}
	c.JSON(status, toSerializable(body))
	return nil
}

// respondHTML sends spec.body, which is either markup or a component
// factory rendered with spec.props. Without a body the run output is used.
func respondHTML(c *gin.Context, exec *Execution, spec map[string]any) error {
	status, err := statusFrom(spec, http.StatusOK)
	if err != nil {
		return err
	}

	body, ok := spec["body"]
	if !ok {
		body = exec.Output()
	}

	var html []byte
	switch b := body.(type) {
	case string:
		html = []byte(b)
	case ComponentFactory:
		props, _ := spec["props"].(map[string]any)
		node, err := b(props)
		if err != nil {
			return fmt.Errorf("error invoking component: %w", err)
		}
		var buf bytes.Buffer
		if err := node.Render(&buf); err != nil {
			return fmt.Errorf("error rendering component: %w", err)
		}
		html = buf.Bytes()
	default:
		return fmt.Errorf("html response body must be markup or a component, got %T", body)
	}

	setHeaders(c, spec)
	c.Data(status, "text/html; charset=utf-8", html)
	return nil
}

func respondRedirect(c *gin.Context, exec *Execution, spec map[string]any) error {
	location, _ := spec["location"].(string)
	if location == "" {
		return fmt.Errorf("redirect response requires a location")
	}
	status, err := statusFrom(spec, http.StatusFound)
	if err != nil {
		return err
	}
	if status < 300 || status >= 400 {
		return fmt.Errorf("redirect status must be 3xx, got %d", status)
	}
	c.Redirect(status, location)
	return nil
}

func statusFrom(spec map[string]any, fallback int) (int, error) {
	v, ok := spec["status"]
	if !ok || v == nil {
		return fallback, nil
	}
	var status int
	switch s := v.(type) {
	case int:
		status = s
	case int64:
		status = int(s)
	case float64:
		status = int(s)
	default:
		return 0, fmt.Errorf("response status must be a number, got %T", v)
	}
	if status < 100 || status > 599 {
		return 0, fmt.Errorf("response status %d out of range", status)
	}
	return status, nil
}

func setHeaders(c *gin.Context, spec map[string]any) {
	headers, _ := spec["headers"].(map[string]any)
	for key, value := range headers {
		c.Header(key, toDisplayString(value))
	}
}
