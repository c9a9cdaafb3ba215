package testserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(DefaultOptions)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	if body := decode(t, resp); body["status"] != "ok" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestTeamPosition_RequiresLogin(t *testing.T) {
	s, ts := newTestServer(t)
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}
	position := `{"position":{"latitude":49.01,"longitude":8.4},"status":"Not ready","description":""}`

	resp, err := client.Post(ts.URL+"/servlet/is/rest/entry/4554/TeamPosition", "application/json", strings.NewReader(position))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 before login, got %d", resp.StatusCode)
	}

	resp, err = client.Get(ts.URL + "/servlet/is/rest/login?user=tabletop&key=wrong&aspect=doLogin")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", resp.StatusCode)
	}

	resp, err = client.Get(ts.URL + "/servlet/is/rest/login?user=tabletop&key=secret&aspect=doLogin")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	resp, err = client.Post(ts.URL+"/servlet/is/rest/entry/4554/TeamPosition", "application/json", strings.NewReader(position))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after login, got %d", resp.StatusCode)
	}

	got := s.RequestsFor(ServiceTeamPosition)
	if len(got) != 1 {
		t.Fatalf("expected 1 recorded request, got %d", len(got))
	}
	pos := got[0].Body["position"].(map[string]any)
	if pos["latitude"] != 49.01 {
		t.Errorf("unexpected position %v", pos)
	}
}

func TestSensorThings_CreatesObservation(t *testing.T) {
	s, ts := newTestServer(t)

	body := `{"phenomenonTime":"2019-07-01T08:00:01.500Z","result":"21.5"}`
	resp, err := http.Post(ts.URL+SensorThingsRoot+"/Datastreams(7)/Observations", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	out := decode(t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, out)
	}
	if out["@iot.id"] == nil || resp.Header.Get("Location") == "" {
		t.Errorf("expected created entity, got %v", out)
	}

	rec := s.RequestsFor(ServiceSensorThings)
	if len(rec) != 1 || rec[0].Path != SensorThingsRoot+"/Datastreams(7)/Observations" {
		t.Errorf("unexpected recorded requests %v", rec)
	}
}

func TestSensorThings_Rejects(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"bad time", "/Datastreams(1)/Observations", `{"phenomenonTime":"yesterday","result":1}`, http.StatusBadRequest},
		{"no result", "/Datastreams(1)/Observations", `{"phenomenonTime":"2019-07-01T08:00:00Z"}`, http.StatusBadRequest},
		{"wrong relation", "/Things(1)/Observations", `{}`, http.StatusNotFound},
		{"unknown", "/Sensors(1)", `{}`, http.StatusNotFound},
		{"not a point", "/Things(2)/Locations", `{"location":{"type":"Polygon"}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+SensorThingsRoot+tt.path, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestTelegram_SendMessage(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/bot123:fake/sendMessage", "application/json",
		strings.NewReader(`{"chat_id":"@exercise","text":"river level rising"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out := decode(t, resp); out["ok"] != true {
		t.Fatalf("expected ok, got %v", out)
	}

	resp, err = http.Post(ts.URL+"/botWRONG/sendMessage", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if out := decode(t, resp); out["ok"] != false || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected unauthorized, got %d %v", resp.StatusCode, out)
	}

	resp, err = http.Post(ts.URL+"/bot123:fake/sendMessage", "application/json", strings.NewReader(`{"text":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out := decode(t, resp); !strings.Contains(out["description"].(string), "chat not found") {
		t.Errorf("unexpected body %v", out)
	}

	if got := s.RequestsFor(ServiceTelegram); len(got) != 1 || got[0].Body["text"] != "river level rising" {
		t.Errorf("unexpected recorded requests %v", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	for _, code := range []int{200, 201, 404, 503} {
		resp, err := http.Get(ts.URL + "/status/" + itoa(code))
		if err != nil {
			t.Fatalf("GET /status/%d failed: %v", code, err)
		}
		resp.Body.Close()
		if resp.StatusCode != code {
			t.Errorf("GET /status/%d: got %d", code, resp.StatusCode)
		}
	}
}

func TestDelayEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	start := time.Now()
	resp, err := http.Get(ts.URL + "/delay/50")
	if err != nil {
		t.Fatalf("GET /delay/50 failed: %v", err)
	}
	resp.Body.Close()
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected delay of at least 50ms, got %v", elapsed)
	}
}

func TestEchoEndpoint(t *testing.T) {
	s, ts := newTestServer(t)

	body := `{"message":"hello","count":42}`
	resp, err := http.Post(ts.URL+"/echo", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /echo failed: %v", err)
	}
	defer resp.Body.Close()

	got, _ := io.ReadAll(resp.Body)
	if string(got) != body {
		t.Errorf("expected body %q, got %q", body, got)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if rec := s.RequestsFor(ServiceGeneric); len(rec) != 1 || rec[0].Body["count"] != float64(42) {
		t.Errorf("unexpected recorded requests %v", rec)
	}

	s.Reset()
	if len(s.Requests()) != 0 {
		t.Error("expected Reset to clear recorded requests")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}
