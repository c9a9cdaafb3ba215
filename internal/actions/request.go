package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tabletop/internal/core"
	"tabletop/internal/template"
)

const (
	// maxDebugBodySize limits the response body logged in verbose mode.
	maxDebugBodySize = 4096
	// maxReadBodySize limits the response body read for checks and extraction.
	maxReadBodySize = 10 * 1024 * 1024
)

// request is one outbound call made by an action.
type request struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
	// ok decides success from the status code; nil accepts any 2xx.
	ok func(status int) bool
	// check inspects a successful response body, if set.
	check   func(body []byte) error
	extract map[string]string
}

// caller performs requests on behalf of one action.
type caller struct {
	client *http.Client
	debug  *DebugLogger
	id     int64
	kind   string
}

// response is what a request produced.
type response struct {
	status  int
	body    []byte
	extract map[string]any
}

func (c caller) do(ctx context.Context, r request) (response, error) {
	start := time.Now()

	var body io.Reader = http.NoBody
	if len(r.body) > 0 {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		c.debug.LogError(c.id, c.kind, err.Error(), time.Since(start))
		return response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if len(r.body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	c.debug.LogRequest(c.id, c.kind, req)

	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.debug.LogError(c.id, c.kind, err.Error(), duration)
		return response{}, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxReadBodySize))
	_, _ = io.Copy(io.Discard, resp.Body)

	debugBody := respBody
	if len(debugBody) > maxDebugBodySize {
		debugBody = debugBody[:maxDebugBodySize]
	}
	c.debug.LogResponse(c.id, c.kind, resp, debugBody, duration)

	out := response{status: resp.StatusCode, body: respBody}
	accept := r.ok
	if accept == nil {
		accept = is2xx
	}
	if !accept(resp.StatusCode) {
		return out, fmt.Errorf("%s %s: unexpected status %s", r.method, redactURL(r.url), resp.Status)
	}
	if r.check != nil {
		if err := r.check(respBody); err != nil {
			return out, err
		}
	}
	if len(r.extract) > 0 {
		out.extract, err = template.Extract(respBody, r.extract)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func statusIs(want int) func(int) bool {
	return func(status int) bool { return status == want }
}

func mustJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return b, nil
}

// finish turns the outcome of an action into its report.
func finish(kind string, start time.Time, status int, extract map[string]any, err error) core.ExecutionReport {
	r := core.ExecutionReport{
		Kind:        kind,
		Outcome:     core.CompletedNormal,
		StatusCode:  status,
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
		Extract:     extract,
	}
	if err != nil {
		r.Outcome = core.CompletedExceptionally
		r.Error = err.Error()
	}
	return r
}
