package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/convoflow/convoflow/pkg/models"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20 // 1 MiB
)

// httpToolConfig is the type-specific config for HTTP tools. URL and header
// values may contain {placeholders} substituted from the input map.
type httpToolConfig struct {
	URL            string            `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// HTTPRunner calls external APIs with a bounded per-call timeout.
type HTTPRunner struct {
	client *http.Client
}

// NewHTTPRunner wraps an HTTP client. The client's own timeout is left
// alone; each call is bounded via context.
func NewHTTPRunner(client *http.Client) *HTTPRunner {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPRunner{client: client}
}

func (r *HTTPRunner) Run(ctx context.Context, _ string, tool models.ToolConfig, input map[string]any) (map[string]any, error) {
	var cfg httpToolConfig
	if err := json.Unmarshal(tool.Config, &cfg); err != nil {
		return nil, &ExecutionError{Tool: tool.Name, Err: fmt.Errorf("invalid http tool config: %w", err)}
	}
	if cfg.URL == "" {
		return nil, &ExecutionError{Tool: tool.Name, Err: fmt.Errorf("http tool config has no url")}
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := substitute(cfg.URL, input)

	var body io.Reader
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		encoded, err := json.Marshal(input)
		if err != nil {
			return nil, &ExecutionError{Tool: tool.Name, Err: err}
		}
		body = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &ExecutionError{Tool: tool.Name, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, substitute(value, input))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &ExecutionError{Tool: tool.Name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ExecutionError{Tool: tool.Name, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExecutionError{Tool: tool.Name, Status: resp.StatusCode,
			Err: fmt.Errorf("upstream returned %s", resp.Status)}
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		// Non-JSON upstream bodies are still a usable result.
		return map[string]any{"body": string(payload)}, nil
	}
	return decoded, nil
}

// substitute replaces {name} markers with the stringified input value.
// Unmatched markers are left in place so failures are visible downstream.
func substitute(template string, input map[string]any) string {
	out := template
	for key, value := range input {
		out = strings.ReplaceAll(out, "{"+key+"}", fmt.Sprint(value))
	}
	return out
}

var _ Runner = (*HTTPRunner)(nil)
