// Package testserver fakes the external services an exercise talks to: the
// team position service, a SensorThings API and the Telegram bot API, plus a
// few generic endpoints for the http event kind. Every request it accepts
// is recorded so tests can assert on what an exercise sent.
package testserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Service names used in recorded requests.
const (
	ServiceTeamPosition = "team_position"
	ServiceSensorThings = "sensorthings"
	ServiceTelegram     = "telegram"
	ServiceGeneric      = "generic"
)

// SensorThingsRoot is the path prefix of the fake SensorThings service.
const SensorThingsRoot = "/FROST-Server/v1.1"

const sessionCookie = "JSESSIONID"

// Options configures the credentials the fake services accept.
type Options struct {
	User     string
	Key      string
	BotToken string
}

// DefaultOptions are the credentials cmd/testserver starts with.
var DefaultOptions = Options{User: "tabletop", Key: "secret", BotToken: "123:fake"}

// Request is one request the server accepted.
type Request struct {
	Service    string         `json:"service"`
	Method     string         `json:"method"`
	Path       string         `json:"path"`
	Body       map[string]any `json:"body,omitempty"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// Server is the fake service host.
type Server struct {
	opts   Options
	mux    *http.ServeMux
	nextID atomic.Int64

	mu       sync.Mutex
	sessions map[string]bool
	received []Request
}

var sensorThingsPath = regexp.MustCompile(`^` + regexp.QuoteMeta(SensorThingsRoot) + `/(Datastreams|Things)\((\d+)\)/(Observations|Locations)$`)

func NewServer(opts Options) *Server {
	s := &Server{
		opts:     opts,
		mux:      http.NewServeMux(),
		sessions: make(map[string]bool),
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /servlet/is/rest/login", s.handleLogin)
	s.mux.HandleFunc("POST /servlet/is/rest/entry/4554/TeamPosition", s.handleTeamPosition)
	s.mux.HandleFunc(SensorThingsRoot+"/", s.handleSensorThings)
	s.mux.HandleFunc("/status/{code}", s.handleStatus)
	s.mux.HandleFunc("/delay/{ms}", s.handleDelay)
	s.mux.HandleFunc("POST /echo", s.handleEcho)
	s.mux.HandleFunc("/", s.handleBot)
}

// Requests returns every recorded request in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.received))
	copy(out, s.received)
	return out
}

// RequestsFor returns the recorded requests of one service.
func (s *Server) RequestsFor(service string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Service == service {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = nil
}

func (s *Server) record(service string, r *http.Request, body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, Request{
		Service:    service,
		Method:     r.Method,
		Path:       r.URL.Path,
		Body:       body,
		ReceivedAt: time.Now(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleLogin opens a session when user and key match.
// Example: GET /servlet/is/rest/login?user=u&key=k&aspect=doLogin
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("aspect") != "doLogin" || q.Get("user") != s.opts.User || q.Get("key") != s.opts.Key {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
		return
	}

	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	session := hex.EncodeToString(buf)

	s.mu.Lock()
	s.sessions[session] = true
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: session, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged in"})
}

// handleTeamPosition accepts a position update from a logged-in session.
func (s *Server) handleTeamPosition(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookie)
	s.mu.Lock()
	ok := err == nil && s.sessions[c.Value]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "not logged in"})
		return
	}

	body, err := readObject(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	pos, _ := body["position"].(map[string]any)
	if _, hasLat := pos["latitude"].(float64); !hasLat {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "position.latitude required"})
		return
	}
	if _, hasLon := pos["longitude"].(float64); !hasLon {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "position.longitude required"})
		return
	}

	s.record(ServiceTeamPosition, r, body)
	writeJSON(w, http.StatusOK, body)
}

// handleSensorThings creates observations and locations.
// Example: POST /FROST-Server/v1.1/Datastreams(7)/Observations
func (s *Server) handleSensorThings(w http.ResponseWriter, r *http.Request) {
	m := sensorThingsPath.FindStringSubmatch(r.URL.Path)
	if m == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "no such resource"})
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"message": "only POST is supported"})
		return
	}
	if (m[1] == "Datastreams") != (m[3] == "Observations") {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "no such relation"})
		return
	}

	body, err := readObject(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	switch m[3] {
	case "Observations":
		if _, err := time.Parse(time.RFC3339, fmt.Sprint(body["phenomenonTime"])); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "phenomenonTime must be RFC 3339"})
			return
		}
		if _, ok := body["result"]; !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "result required"})
			return
		}
	case "Locations":
		loc, _ := body["location"].(map[string]any)
		if loc["type"] != "Point" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "location must be a GeoJSON point"})
			return
		}
	}

	s.record(ServiceSensorThings, r, body)
	id := s.nextID.Add(1)
	body["@iot.id"] = id
	w.Header().Set("Location", fmt.Sprintf("%s/%s(%d)", SensorThingsRoot, m[3], id))
	writeJSON(w, http.StatusCreated, body)
}

// handleBot fakes POST /bot<token>/sendMessage.
func (s *Server) handleBot(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/bot")
	if !ok {
		http.NotFound(w, r)
		return
	}
	token, method, _ := strings.Cut(rest, "/")
	if token != s.opts.BotToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error_code": 401, "description": "Unauthorized"})
		return
	}
	if method != "sendMessage" || r.Method != http.MethodPost {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error_code": 404, "description": "Not Found"})
		return
	}

	body, err := readObject(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error_code": 400, "description": err.Error()})
		return
	}
	chat, _ := body["chat_id"].(string)
	text, _ := body["text"].(string)
	if chat == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"})
		return
	}
	if text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: message text is empty"})
		return
	}

	s.record(ServiceTelegram, r, body)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"result": map[string]any{
			"message_id": s.nextID.Add(1),
			"chat":       map[string]any{"username": chat},
			"text":       text,
		},
	})
}

// handleStatus returns the requested status code.
// Example: GET /status/404
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	s.record(ServiceGeneric, r, nil)
	writeJSON(w, code, map[string]any{"status": code, "text": http.StatusText(code)})
}

// handleDelay waits before answering.
// Example: GET /delay/100 waits 100ms
func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.PathValue("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "invalid delay", http.StatusBadRequest)
		return
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-r.Context().Done():
		return
	}
	s.record(ServiceGeneric, r, nil)
	writeJSON(w, http.StatusOK, map[string]any{"delayedMs": ms})
}

// handleEcho answers with the request body and content type.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	s.record(ServiceGeneric, r, decoded)

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func readObject(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
