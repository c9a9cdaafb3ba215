// Package api exposes scenarios, configurations and simulations over a JSON
// REST interface, and streams simulation status over websockets.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"tabletop/internal/actions"
	"tabletop/internal/collector"
	"tabletop/internal/scenario"
	"tabletop/internal/service"
	"tabletop/internal/simulation"
	"tabletop/internal/storage"
)

// DefaultStatusInterval is how often the websocket pushes a snapshot.
const DefaultStatusInterval = 500 * time.Millisecond

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// KindLister lists the event kinds scenarios may use.
type KindLister interface {
	Kinds() []actions.Kind
}

// Reports reads archived reports.
type Reports interface {
	Get(ctx context.Context, runID string) (storage.Report, error)
	ListForSimulation(ctx context.Context, simulationID int64) ([]storage.Report, error)
}

// Options configures a Server. Repository and Service are required.
type Options struct {
	Repository *scenario.Repository
	Service    *service.Service
	Kinds      KindLister
	Reports    Reports
	// Metrics serves GET /metrics when set.
	Metrics    http.Handler
	Thresholds *collector.Thresholds
	Logger     *log.Logger
	// StatusInterval defaults to DefaultStatusInterval.
	StatusInterval time.Duration
}

type Server struct {
	opts   Options
	router *mux.Router
}

func New(opts Options) (*Server, error) {
	if opts.Repository == nil {
		return nil, errors.New("api: repository is required")
	}
	if opts.Service == nil {
		return nil, errors.New("api: service is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	s := &Server{opts: opts, router: mux.NewRouter()}
	s.routes()
	return s, nil
}

// Handler returns the router wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.router)
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/eventtypes", s.eventTypes).Methods(http.MethodGet)

	r.HandleFunc("/scenarios", s.listScenarios).Methods(http.MethodGet)
	r.HandleFunc("/scenarios", s.createScenario).Methods(http.MethodPost)
	r.HandleFunc("/scenarios/import", s.importScenario).Methods(http.MethodPost)
	r.HandleFunc("/scenarios/{id:[0-9]+}", s.getScenario).Methods(http.MethodGet)
	r.HandleFunc("/scenarios/{id:[0-9]+}", s.renameScenario).Methods(http.MethodPut)
	r.HandleFunc("/scenarios/{id:[0-9]+}", s.deleteScenario).Methods(http.MethodDelete)
	r.HandleFunc("/scenarios/{id:[0-9]+}/export", s.exportScenario).Methods(http.MethodGet)

	r.HandleFunc("/scenarios/{id:[0-9]+}/phases", s.addPhase).Methods(http.MethodPost)
	r.HandleFunc("/scenarios/{id:[0-9]+}/phases/{phaseId:[0-9]+}", s.discardPhase).Methods(http.MethodDelete)
	r.HandleFunc("/scenarios/{id:[0-9]+}/phases/{phaseId:[0-9]+}/shift", s.shiftPhase).Methods(http.MethodPost)
	r.HandleFunc("/scenarios/{id:[0-9]+}/phases/{phaseId:[0-9]+}/events", s.addEvent).Methods(http.MethodPost)
	r.HandleFunc("/scenarios/{id:[0-9]+}/phases/{phaseId:[0-9]+}/events/{eventId:[0-9]+}", s.editEvent).Methods(http.MethodPut)
	r.HandleFunc("/scenarios/{id:[0-9]+}/phases/{phaseId:[0-9]+}/events/{eventId:[0-9]+}", s.removeEvent).Methods(http.MethodDelete)

	r.HandleFunc("/configurations", s.listConfigurations).Methods(http.MethodGet)
	r.HandleFunc("/configurations", s.createConfiguration).Methods(http.MethodPost)
	r.HandleFunc("/configurations/{id:[0-9]+}", s.getConfiguration).Methods(http.MethodGet)

	r.HandleFunc("/scenarios/{id:[0-9]+}/simulations", s.listSimulations).Methods(http.MethodGet)
	r.HandleFunc("/scenarios/{id:[0-9]+}/simulations", s.createSimulation).Methods(http.MethodPost)
	r.HandleFunc("/simulations", s.listAllSimulations).Methods(http.MethodGet)
	r.HandleFunc("/simulations/{id:[0-9]+}", s.getSimulation).Methods(http.MethodGet)
	r.HandleFunc("/simulations/{id:[0-9]+}/play", s.control(s.opts.Service.Play)).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id:[0-9]+}/pause", s.control(s.opts.Service.Pause)).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id:[0-9]+}/stop", s.control(s.opts.Service.Stop)).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id:[0-9]+}/fastforward/{eventId:[0-9]+}", s.fastForward).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id:[0-9]+}/speed", s.changeSpeed).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id:[0-9]+}/collect", s.collect).Methods(http.MethodGet)
	r.HandleFunc("/simulations/{id:[0-9]+}/reports", s.listReports).Methods(http.MethodGet)
	r.HandleFunc("/simulations/{id:[0-9]+}/ws", s.watch).Methods(http.MethodGet)

	r.HandleFunc("/reports/{runId}", s.getReport).Methods(http.MethodGet)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) eventTypes(w http.ResponseWriter, _ *http.Request) {
	kinds := []actions.Kind{}
	if s.opts.Kinds != nil {
		kinds = s.opts.Kinds.Kinds()
	}
	writeJSON(w, http.StatusOK, kinds)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.opts.Logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scenario.ErrNotFound),
		errors.Is(err, service.ErrSimulationNotFound),
		errors.Is(err, simulation.ErrUnknownAction),
		errors.Is(err, storage.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, service.ErrNoPhases),
		errors.Is(err, simulation.ErrInvalidSpeed),
		errors.Is(err, simulation.ErrNegativeDueTime),
		errors.Is(err, simulation.ErrDuplicateAction),
		errors.Is(err, scenario.ErrInvalidEvent),
		errors.Is(err, scenario.ErrUnknownKind),
		errors.Is(err, scenario.ErrInvalidShift),
		errors.Is(err, scenario.ErrStandardPhase):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.opts.Logger.Printf("error: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", errBadRequest, name, raw)
	}
	return id, nil
}

// pathIDs parses the named path variables in order.
func pathIDs(r *http.Request, names ...string) ([]int64, error) {
	out := make([]int64, len(names))
	for i, name := range names {
		id, err := pathID(r, name)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
