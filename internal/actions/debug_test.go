package actions

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"tabletop/internal/scenario"
	"tabletop/testserver"
)

func TestDebugLogger_LogRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDebugLogger(&buf)

	req, _ := http.NewRequest("POST", "http://frost.local/FROST-Server/v1.1/Datastreams(7)/Observations", strings.NewReader(`{"result":21.5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token123")

	logger.LogRequest(3, KindObservation, req)

	output := buf.String()
	for _, want := range []string{"[Action 3]", ">>> REQUEST: observation", "POST", "Datastreams(7)/Observations", "Content-Type", `{"result":21.5}`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "token123") {
		t.Errorf("expected Authorization to be redacted, got: %s", output)
	}
}

func TestDebugLogger_LogResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDebugLogger(&buf)

	resp := &http.Response{
		StatusCode: 201,
		Status:     "201 Created",
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
	logger.LogResponse(3, KindObservation, resp, []byte(`{"@iot.id": 12}`), 150*time.Millisecond)

	output := buf.String()
	for _, want := range []string{"[Action 3] <<< RESPONSE", "201", "150ms", `"@iot.id": 12`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestDebugLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDebugLogger(&buf)

	logger.LogError(5, KindMessage, "connection refused", 50*time.Millisecond)

	output := buf.String()
	for _, want := range []string{"[Action 5]", "!!! ERROR: message", "connection refused"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestDebugLogger_TruncatesLongBodies(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDebugLogger(&buf)

	req, _ := http.NewRequest("POST", "http://example.com/echo", strings.NewReader(strings.Repeat("x", 2000)))
	logger.LogRequest(1, KindHTTP, req)

	if !strings.Contains(buf.String(), "truncated, 2000 bytes total") {
		t.Errorf("expected long body to be truncated, got: %s", buf.String())
	}
}

func TestDebugLogger_NilLogger(t *testing.T) {
	var logger *DebugLogger

	// These should not panic
	req, _ := http.NewRequest("GET", "http://example.com", nil)
	logger.LogRequest(1, "test", req)
	logger.LogResponse(1, "test", &http.Response{StatusCode: 200}, nil, time.Millisecond)
	logger.LogError(1, "test", "error", time.Millisecond)
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://api.telegram.org/bot123:abc/sendMessage", "https://api.telegram.org/bot[redacted]/sendMessage"},
		{"http://tp/servlet/is/rest/login?aspect=doLogin&key=s3cret&user=u", "http://tp/servlet/is/rest/login?aspect=doLogin&key=[redacted]&user=u"},
		{"http://tp/login?key=s3cret", "http://tp/login?key=[redacted]"},
		{"http://frost/v1.1/Things(1)/Locations", "http://frost/v1.1/Things(1)/Locations"},
	}
	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDebugLogger_MessageActionHidesToken(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	f.reg.debug = NewDebugLogger(&buf)

	rep := f.play(t, scenario.Event{ID: 4, Kind: KindMessage, Data: map[string]any{"message": "exercise starts"}})
	if !rep.Succeeded() {
		t.Fatalf("expected success, got %s", rep.Error)
	}

	output := buf.String()
	if strings.Contains(output, testserver.DefaultOptions.BotToken) {
		t.Errorf("bot token leaked into debug output: %s", output)
	}
	if !strings.Contains(output, "[Action 4] >>> REQUEST: message") || !strings.Contains(output, "<<< RESPONSE") {
		t.Errorf("expected request and response in output, got: %s", output)
	}
}
