// Package actions holds host-provided functions that steps reach through
// the execution context, such as context.http.get(url) in a script step.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/stepflow/runtime"
)

// HTTPBinding is the context key the HTTP handlers are bound under.
const HTTPBinding = "http"

type HTTPConfig struct {
	Enabled     bool          `yaml:"enabled" default:"true"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url_format"`
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Debug       bool          `yaml:"debug" default:"false"`
}

// LoadHTTPConfig applies defaults, merges raw on top and validates.
func LoadHTTPConfig(raw map[string]any) (HTTPConfig, error) {
	var cfg HTTPConfig
	if err := runtime.InitializeConfig(&cfg, raw); err != nil {
		return HTTPConfig{}, fmt.Errorf("http actions: %w", err)
	}
	return cfg, nil
}

// HTTP issues outbound requests on behalf of workflow steps.
type HTTP struct {
	l      *slog.Logger
	client *resty.Client
}

func NewHTTP(l *slog.Logger, cfg HTTPConfig) *HTTP {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond).
		SetDebug(cfg.Debug)
	if cfg.BaseURL != "" {
		client.SetBaseURL(cfg.BaseURL)
	}
	return &HTTP{l: l, client: client}
}

// Handlers returns the functions exposed to steps. Every handler returns a
// map with status, status_code, is_error, headers and body. A JSON response
// body is decoded; anything else is returned as a string.
//
// Options accepted by every handler: headers, query, body, form.
func (h *HTTP) Handlers() map[string]any {
	return map[string]any{
		"get": func(url string, opts ...map[string]any) (map[string]any, error) {
			return h.Request("GET", url, merge(opts))
		},
		"delete": func(url string, opts ...map[string]any) (map[string]any, error) {
			return h.Request("DELETE", url, merge(opts))
		},
		"post": func(url string, body any, opts ...map[string]any) (map[string]any, error) {
			o := merge(opts)
			o["body"] = body
			return h.Request("POST", url, o)
		},
		"put": func(url string, body any, opts ...map[string]any) (map[string]any, error) {
			o := merge(opts)
			o["body"] = body
			return h.Request("PUT", url, o)
		},
		"request": func(method, url string, opts ...map[string]any) (map[string]any, error) {
			return h.Request(strings.ToUpper(method), url, merge(opts))
		},
	}
}

// Request executes one call. Transport failures are returned as errors;
// HTTP error statuses are not, callers inspect is_error instead.
func (h *HTTP) Request(method, url string, opts map[string]any) (map[string]any, error) {
	ctx := context.Background()
	req := h.client.R().SetContext(ctx)

	if headers, ok := opts["headers"].(map[string]any); ok {
		req.SetHeaders(stringify(headers))
	}
	if query, ok := opts["query"].(map[string]any); ok {
		req.SetQueryParams(stringify(query))
	}
	if form, ok := opts["form"].(map[string]any); ok {
		req.SetFormData(flattenToFormData(form))
	} else if body, ok := opts["body"]; ok && body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		h.l.WarnContext(ctx, fmt.Sprintf("HTTP %s %s failed", method, url), "error", err)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	h.l.DebugContext(ctx, fmt.Sprintf("HTTP %s %s", method, url), "status", resp.StatusCode())

	headers := make(map[string]any, len(resp.Header()))
	for k := range resp.Header() {
		headers[k] = resp.Header().Get(k)
	}

	return map[string]any{
		"status":      resp.Status(),
		"status_code": resp.StatusCode(),
		"is_error":    resp.IsError(),
		"headers":     headers,
		"body":        decodeBody(resp),
	}, nil
}

func decodeBody(resp *resty.Response) any {
	raw := resp.Body()
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(resp.Header().Get("Content-Type"), "json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
	}
	return string(raw)
}

func merge(opts []map[string]any) map[string]any {
	out := make(map[string]any)
	for _, o := range opts {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

func stringify(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = formatScalar(v)
	}
	return out
}

// flattenToFormData encodes nested maps and lists with bracket keys, the
// shape form-encoded APIs such as Stripe expect:
// {"metadata": {"id": 1}} becomes metadata[id]=1.
func flattenToFormData(data map[string]any) map[string]string {
	out := make(map[string]string)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		flattenValue(out, k, data[k])
	}
	return out
}

func flattenValue(out map[string]string, key string, v any) {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			flattenValue(out, fmt.Sprintf("%s[%s]", key, k), item)
		}
	case []any:
		for i, item := range val {
			flattenValue(out, fmt.Sprintf("%s[%d]", key, i), item)
		}
	default:
		out[key] = formatScalar(val)
	}
}

func formatScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}
