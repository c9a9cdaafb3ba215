package actions

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tabletop/internal/core"
	"tabletop/internal/scenario"
)

// SensorThings API event kinds. Both need the frostServerUrl configuration
// property, the service root such as http://host/FROST-Server/v1.1.
const (
	// KindObservation creates an observation in a datastream. The
	// phenomenon time is the event's scenario time.
	//
	// Event data: dataStreamId, result.
	KindObservation = "observation"

	// KindLocation adds a location to a thing.
	//
	// Event data: thingId, name, description, geo (GeoJSON point).
	KindLocation = "location"
)

const geoJSONEncoding = "application/vnd.geo+json"

type observationAction struct {
	caller
	event scenario.Event
	cfg   scenario.Configuration
}

func validateObservation(data map[string]any) error {
	if _, err := integer(data, "dataStreamId"); err != nil {
		return err
	}
	if v, ok := data["result"]; !ok || v == nil {
		return fmt.Errorf("%w: missing %q", scenario.ErrInvalidEvent, "result")
	}
	return nil
}

func (a *observationAction) Execute(ctx context.Context) core.ExecutionReport {
	start := time.Now()
	status, err := a.execute(ctx)
	return finish(KindObservation, start, status, nil, err)
}

func (a *observationAction) execute(ctx context.Context) (int, error) {
	root, err := a.cfg.Property("frostServerUrl")
	if err != nil {
		return 0, err
	}
	id, err := integer(a.event.Data, "dataStreamId")
	if err != nil {
		return 0, err
	}

	body, err := mustJSON(map[string]any{
		"phenomenonTime": a.cfg.EventTime(a.event).Format("2006-01-02T15:04:05.000Z"),
		"result":         a.event.Data["result"],
	})
	if err != nil {
		return 0, err
	}
	resp, err := a.do(ctx, request{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/Datastreams(%d)/Observations", strings.TrimRight(root, "/"), id),
		body:   body,
	})
	return resp.status, err
}

type locationAction struct {
	caller
	event scenario.Event
	cfg   scenario.Configuration
}

func validateLocation(data map[string]any) error {
	if _, err := integer(data, "thingId"); err != nil {
		return err
	}
	if _, err := text(data, "name"); err != nil {
		return err
	}
	_, _, err := point(data, "geo")
	return err
}

func (a *locationAction) Execute(ctx context.Context) core.ExecutionReport {
	start := time.Now()
	status, err := a.execute(ctx)
	return finish(KindLocation, start, status, nil, err)
}

func (a *locationAction) execute(ctx context.Context) (int, error) {
	root, err := a.cfg.Property("frostServerUrl")
	if err != nil {
		return 0, err
	}
	id, err := integer(a.event.Data, "thingId")
	if err != nil {
		return 0, err
	}
	name, err := text(a.event.Data, "name")
	if err != nil {
		return 0, err
	}
	description, _ := a.event.Data["description"].(string)
	lon, lat, err := point(a.event.Data, "geo")
	if err != nil {
		return 0, err
	}

	body, err := mustJSON(map[string]any{
		"name":         name,
		"description":  description,
		"encodingType": geoJSONEncoding,
		"location": map[string]any{
			"type":        "Point",
			"coordinates": []float64{lon, lat},
		},
	})
	if err != nil {
		return 0, err
	}
	resp, err := a.do(ctx, request{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/Things(%d)/Locations", strings.TrimRight(root, "/"), id),
		body:   body,
	})
	return resp.status, err
}
