package actions

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tabletop/internal/core"
	"tabletop/internal/scenario"
	"tabletop/internal/template"
)

// KindHTTP is a generic templated request.
//
// Event data: method (default GET), url, headers, body (string or object),
// expectStatus (default any 2xx), extract (variable -> JSONPath).
const KindHTTP = "http"

type httpAction struct {
	caller
	event scenario.Event
	cfg   scenario.Configuration
}

func validateHTTP(data map[string]any) error {
	if _, err := text(data, "url"); err != nil {
		return err
	}
	if m, ok := data["method"]; ok {
		if _, isString := m.(string); !isString {
			return fmt.Errorf("%w: method must be a string", scenario.ErrInvalidEvent)
		}
	}
	if _, err := stringMap(data, "headers"); err != nil {
		return err
	}
	if _, err := stringMap(data, "extract"); err != nil {
		return err
	}
	return nil
}

func (a *httpAction) Execute(ctx context.Context) core.ExecutionReport {
	start := time.Now()
	resp, err := a.execute(ctx)
	return finish(KindHTTP, start, resp.status, resp.extract, err)
}

func (a *httpAction) execute(ctx context.Context) (response, error) {
	vars := variables(a.event, a.cfg)
	data := a.event.Data

	rawURL, err := text(data, "url")
	if err != nil {
		return response{}, err
	}
	url, err := template.Substitute(rawURL, vars)
	if err != nil {
		return response{}, err
	}

	method := http.MethodGet
	if m, ok := data["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	rawHeaders, err := stringMap(data, "headers")
	if err != nil {
		return response{}, err
	}
	headers, err := template.SubstituteMap(rawHeaders, vars)
	if err != nil {
		return response{}, err
	}

	var body []byte
	switch b := data["body"].(type) {
	case nil:
	case string:
		s, err := template.Substitute(b, vars)
		if err != nil {
			return response{}, err
		}
		body = []byte(s)
	default:
		rendered, err := template.Render(b, vars)
		if err != nil {
			return response{}, err
		}
		if body, err = mustJSON(rendered); err != nil {
			return response{}, err
		}
	}

	extract, err := stringMap(data, "extract")
	if err != nil {
		return response{}, err
	}

	r := request{method: method, url: url, headers: headers, body: body, extract: extract}
	if _, ok := data["expectStatus"]; ok {
		want, err := integer(data, "expectStatus")
		if err != nil {
			return response{}, err
		}
		r.ok = statusIs(int(want))
	}
	return a.do(ctx, r)
}

func stringMap(data map[string]any, key string) (map[string]string, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be an object", scenario.ErrInvalidEvent, key)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s must be a string", scenario.ErrInvalidEvent, key, k)
		}
		out[k] = s
	}
	return out, nil
}
