package actions

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHTTP(t *testing.T, raw map[string]any) *HTTP {
	t.Helper()
	cfg, err := LoadHTTPConfig(raw)
	require.NoError(t, err)
	return NewHTTP(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func TestLoadHTTPConfig(t *testing.T) {
	cfg, err := LoadHTTPConfig(nil)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100, cfg.RetryWaitMS)

	cfg, err = LoadHTTPConfig(map[string]any{"timeout": "5s", "max_retries": 0})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.MaxRetries)

	_, err = LoadHTTPConfig(map[string]any{"max_retries": 50})
	assert.Error(t, err)

	_, err = LoadHTTPConfig(map[string]any{"base_url": "not a url"})
	assert.Error(t, err)
}

func TestHTTP_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "42", r.URL.Query().Get("id"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name": "ada", "tags": ["x"]}`))
	}))
	defer srv.Close()

	get := testHTTP(t, map[string]any{"max_retries": 0}).Handlers()["get"].(func(string, ...map[string]any) (map[string]any, error))

	out, err := get(srv.URL, map[string]any{
		"query":   map[string]any{"id": int64(42)},
		"headers": map[string]any{"X-Token": "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, out["status_code"])
	assert.Equal(t, false, out["is_error"])
	assert.Equal(t, map[string]any{"name": "ada", "tags": []any{"x"}}, out["body"])
}

func TestHTTP_PostJSONAndErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount": 10}`, string(body))
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such thing"))
	}))
	defer srv.Close()

	h := testHTTP(t, map[string]any{"max_retries": 0})
	out, err := h.Request("POST", srv.URL, map[string]any{"body": map[string]any{"amount": 10}})
	require.NoError(t, err)
	assert.Equal(t, 404, out["status_code"])
	assert.Equal(t, true, out["is_error"])
	assert.Equal(t, "no such thing", out["body"])
}

func TestHTTP_Form(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "order_1", r.PostForm.Get("metadata[order_id]"))
		assert.Equal(t, "card", r.PostForm.Get("methods[0]"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	out, err := testHTTP(t, map[string]any{"max_retries": 0}).Request("POST", srv.URL, map[string]any{
		"form": map[string]any{
			"metadata": map[string]any{"order_id": "order_1"},
			"methods":  []any{"card"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 204, out["status_code"])
	assert.Nil(t, out["body"])
}

func TestHTTP_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := testHTTP(t, map[string]any{"max_retries": 0}).Request("GET", url, nil)
	assert.Error(t, err)
}

func TestFlattenToFormData(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected map[string]string
	}{
		{
			name:     "scalars",
			input:    map[string]any{"amount": 1099, "currency": "usd", "live": true, "rate": 0.15},
			expected: map[string]string{"amount": "1099", "currency": "usd", "live": "true", "rate": "0.15"},
		},
		{
			name: "nested maps",
			input: map[string]any{
				"shipping": map[string]any{"address": map[string]any{"city": "NYC"}},
			},
			expected: map[string]string{"shipping[address][city]": "NYC"},
		},
		{
			name: "lists of objects",
			input: map[string]any{
				"line_items": []any{
					map[string]any{"price": "p1", "quantity": int64(2)},
					map[string]any{"price": "p2", "quantity": int64(1)},
				},
			},
			expected: map[string]string{
				"line_items[0][price]":    "p1",
				"line_items[0][quantity]": "2",
				"line_items[1][price]":    "p2",
				"line_items[1][quantity]": "1",
			},
		},
		{
			name:     "empty",
			input:    map[string]any{},
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := flattenToFormData(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("got %d keys, want %d: %v", len(result), len(tt.expected), result)
				return
			}
			for key, want := range tt.expected {
				if got, ok := result[key]; !ok {
					t.Errorf("missing key %q", key)
				} else if got != want {
					t.Errorf("key %q: got %q, want %q", key, got, want)
				}
			}
		})
	}
}
