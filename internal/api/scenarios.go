package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tabletop/internal/scenario"
)

type nameRequest struct {
	Name string `json:"name"`
}

func (n nameRequest) validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return fmt.Errorf("%w: name is required", errBadRequest)
	}
	return nil
}

func (s *Server) listScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Repository.Scenarios())
}

func (s *Server) createScenario(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.opts.Repository.CreateScenario(req.Name))
}

func (s *Server) getScenario(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	sc, err := s.opts.Repository.Scenario(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) renameScenario(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req nameRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}
	sc, err := s.opts.Repository.RenameScenario(id, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) deleteScenario(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.opts.Repository.DeleteScenario(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// exportScenario writes the scenario document as JSON, or as YAML with
// ?format=yaml.
func (s *Server) exportScenario(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	doc, err := s.opts.Repository.ExportScenario(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var (
		body        []byte
		contentType string
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		body, err = doc.JSON()
		contentType = "application/json"
	case "yaml", "yml":
		body, err = doc.YAML()
		contentType = "application/yaml"
	default:
		s.writeError(w, fmt.Errorf("%w: unknown format %q", errBadRequest, format))
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=scenario-%d.%s", id, strings.TrimPrefix(contentType, "application/")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// importScenario accepts a JSON or YAML scenario document.
func (s *Server) importScenario(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: read body: %v", errBadRequest, err))
		return
	}
	doc, err := scenario.ParseDocument(data)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sc, err := s.opts.Repository.ImportScenario(doc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) addPhase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req nameRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.opts.Repository.AddPhase(id, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// discardPhase moves the phase's events to the standard phase and removes it.
func (s *Server) discardPhase(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "phaseId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.opts.Repository.DiscardPhase(ids[0], ids[1]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// shiftPhase moves every event of a phase by ?by= milliseconds.
func (s *Server) shiftPhase(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "phaseId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	raw := r.URL.Query().Get("by")
	by, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: by %q: must be milliseconds", errBadRequest, raw))
		return
	}
	p, err := s.opts.Repository.ShiftPhase(ids[0], ids[1], by)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) addEvent(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "phaseId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req scenario.DocumentEvent
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	at, err := req.Millis()
	if err != nil {
		s.writeError(w, err)
		return
	}
	ev, err := s.opts.Repository.AddEvent(ids[0], ids[1], req.Kind, at, req.Data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// editEvent replaces the point in time and data of an event. Its kind is
// fixed.
func (s *Server) editEvent(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "phaseId", "eventId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req scenario.DocumentEvent
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	at, err := req.Millis()
	if err != nil {
		s.writeError(w, err)
		return
	}
	ev, err := s.opts.Repository.EditEvent(ids[0], ids[1], ids[2], at, req.Data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) removeEvent(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "phaseId", "eventId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.opts.Repository.RemoveEvent(ids[0], ids[1], ids[2]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listConfigurations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Repository.Configurations())
}

func (s *Server) createConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg scenario.Configuration
	if err := readJSON(r, &cfg); err != nil {
		s.writeError(w, err)
		return
	}
	if cfg.ScenarioStartTime < 0 {
		s.writeError(w, fmt.Errorf("%w: scenarioStartTime must not be negative", errBadRequest))
		return
	}
	writeJSON(w, http.StatusCreated, s.opts.Repository.CreateConfiguration(cfg))
}

func (s *Server) getConfiguration(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	cfg, err := s.opts.Repository.Configuration(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
