package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"tabletop/internal/collector"
	"tabletop/internal/service"
)

type createSimulationRequest struct {
	ConfigurationID int64   `json:"configurationId"`
	PhaseIDs        []int64 `json:"phaseIds"`
	Speed           float64 `json:"speed,omitempty"`
}

// collectResponse is the summary of a harvest plus the id it was archived
// under.
type collectResponse struct {
	RunID string `json:"runId,omitempty"`
	collector.JSONSummary
}

func (s *Server) listAllSimulations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Service.List())
}

func (s *Server) listSimulations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.opts.Repository.Scenario(id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Service.ListForScenario(id))
}

func (s *Server) createSimulation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req createSimulationRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.opts.Service.Create(service.CreateRequest{
		ScenarioID:      id,
		ConfigurationID: req.ConfigurationID,
		PhaseIDs:        req.PhaseIDs,
		Speed:           req.Speed,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getSimulation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.opts.Service.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// control adapts a service operation on one simulation to a handler that
// answers with the resulting snapshot.
func (s *Server) control(op func(id int64) (service.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, err)
			return
		}
		snap, err := op(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) fastForward(w http.ResponseWriter, r *http.Request) {
	ids, err := pathIDs(r, "id", "eventId")
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.opts.Service.FastForward(ids[0], ids[1])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) changeSpeed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	raw := r.URL.Query().Get("speed")
	factor, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: speed %q", errBadRequest, raw))
		return
	}
	snap, err := s.opts.Service.ChangeSpeed(id, factor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// collect blocks until every action dispatched so far has finished.
func (s *Server) collect(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.opts.Service.Collect(r.Context(), id, s.opts.Thresholds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collectResponse{
		RunID:       res.RunID,
		JSONSummary: collector.ToJSON(res.Summary, res.Thresholds),
	})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.opts.Reports == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	reports, err := s.opts.Reports.ListForSimulation(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if reports == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	if s.opts.Reports == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no report archive configured"})
		return
	}
	report, err := s.opts.Reports.Get(r.Context(), mux.Vars(r)["runId"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
