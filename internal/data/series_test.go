package data

import (
	"errors"
	"strings"
	"testing"

	"tabletop/internal/scenario"
)

func TestSeries_Events(t *testing.T) {
	s := Series{
		Phase: "Standard",
		Kind:  "observation",
		File:  "gauge.csv",
		Data:  map[string]any{"dataStreamId": 7, "result": 0},
	}
	rows := Rows{
		{"at": int64(0), "result": 7.9},
		{"at": "15m", "result": 8.05},
		{"at": float64(1800000), "result": 8.1},
	}

	events, err := s.Events(rows)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}

	wantAt := []int64{0, 900000, 1800000}
	for i, ev := range events {
		at, err := ev.Millis()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if at != wantAt[i] {
			t.Errorf("event %d at %dms, want %dms", i, at, wantAt[i])
		}
		if ev.Kind != "observation" {
			t.Errorf("event %d kind = %q", i, ev.Kind)
		}
		if ev.Data["dataStreamId"] != 7 {
			t.Errorf("event %d lost the series data: %v", i, ev.Data)
		}
		if _, ok := ev.Data["at"]; ok {
			t.Errorf("event %d carries the at column in its data", i)
		}
	}
	if events[2].Data["result"] != 8.1 {
		t.Errorf("row values should win over series data, got %v", events[2].Data["result"])
	}
}

func TestSeries_CustomAtColumn(t *testing.T) {
	s := Series{Phase: "p", Kind: "message", File: "f.csv", AtColumn: "offset"}
	events, err := s.Events(Rows{{"offset": "2m", "message": "Dike breach"}})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if events[0].At != "2m" || events[0].Data["message"] != "Dike breach" {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestSeries_EventsErrors(t *testing.T) {
	s := Series{Phase: "p", Kind: "k", File: "f.csv"}
	tests := []struct {
		name string
		rows Rows
		want string
	}{
		{"missing column", Rows{{"time": "1s"}}, `missing column "at" (have time)`},
		{"bad duration", Rows{{"at": "soon"}}, "row 1"},
		{"negative", Rows{{"at": int64(0)}, {"at": int64(-5)}}, "row 2"},
		{"wrong type", Rows{{"at": true}}, "holds true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Events(tt.rows)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "gauge.csv", "at,result\n0,7.9\n15m,8.05")

	doc := scenario.Document{
		Name: "Rhine flood",
		Phases: []scenario.DocumentPhase{
			{Name: "Standard", Standard: true, Events: []scenario.DocumentEvent{{Kind: "message", At: "1m"}}},
			{Name: "Evacuation"},
		},
	}
	err := Expand(&doc, []Series{{Phase: "Standard", Kind: "observation", File: "gauge.csv", Data: map[string]any{"dataStreamId": 7}}}, dir)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if n := len(doc.Phases[0].Events); n != 3 {
		t.Fatalf("standard phase has %d events, want 3", n)
	}
	if len(doc.Phases[1].Events) != 0 {
		t.Errorf("other phases must stay untouched")
	}

	err = Expand(&doc, []Series{{Phase: "Recovery", Kind: "observation", File: "gauge.csv"}}, dir)
	if !errors.Is(err, scenario.ErrPhaseNotFound) {
		t.Errorf("expected ErrPhaseNotFound, got %v", err)
	}

	err = Expand(&doc, []Series{{Phase: "Standard"}}, dir)
	if err == nil || !strings.Contains(err.Error(), "kind is required") {
		t.Errorf("expected validation error, got %v", err)
	}
}
