// Package actions implements the event kinds a scenario can contain. Each
// kind turns an event plus the configuration it is played with into a
// core.Action that calls an external service.
package actions

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"tabletop/internal/core"
	"tabletop/internal/scenario"
)

// DefaultTimeout bounds every outbound call when no client is supplied.
const DefaultTimeout = 10 * time.Second

// Kind describes an event kind to scenario authors.
type Kind struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Fields      []string `json:"fields"`
	ConfigKeys  []string `json:"configKeys"`

	validate func(data map[string]any) error
	build    func(c caller, ev scenario.Event, cfg scenario.Configuration) core.Action
}

// Registry maps kind names to their implementations.
type Registry struct {
	client *http.Client
	debug  *DebugLogger
	kinds  map[string]Kind
}

// NewRegistry returns a registry holding every built-in kind. A nil client
// gets one with DefaultTimeout; a nil debug logger disables request logging.
func NewRegistry(client *http.Client, debug *DebugLogger) *Registry {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	r := &Registry{client: client, debug: debug, kinds: make(map[string]Kind)}

	r.Register(Kind{
		Name:        KindHTTP,
		Description: "Generic templated HTTP request",
		Fields:      []string{"method", "url", "headers", "body", "expectStatus", "extract"},
		validate:    validateHTTP,
		build: func(c caller, ev scenario.Event, cfg scenario.Configuration) core.Action {
			return &httpAction{caller: c, event: ev, cfg: cfg}
		},
	})
	r.Register(Kind{
		Name:        KindTeamPosition,
		Description: "Team position",
		Fields:      []string{"teamID", "geo"},
		ConfigKeys:  []string{"teamPositionUrl", "tpUname", "tpPswd"},
		validate:    validateTeamPosition,
		build: func(c caller, ev scenario.Event, cfg scenario.Configuration) core.Action {
			return &teamPositionAction{caller: c, event: ev, cfg: cfg}
		},
	})
	r.Register(Kind{
		Name:        KindObservation,
		Description: "SensorThings: create observation",
		Fields:      []string{"dataStreamId", "result"},
		ConfigKeys:  []string{"frostServerUrl"},
		validate:    validateObservation,
		build: func(c caller, ev scenario.Event, cfg scenario.Configuration) core.Action {
			return &observationAction{caller: c, event: ev, cfg: cfg}
		},
	})
	r.Register(Kind{
		Name:        KindLocation,
		Description: "SensorThings: add location",
		Fields:      []string{"thingId", "name", "description", "geo"},
		ConfigKeys:  []string{"frostServerUrl"},
		validate:    validateLocation,
		build: func(c caller, ev scenario.Event, cfg scenario.Configuration) core.Action {
			return &locationAction{caller: c, event: ev, cfg: cfg}
		},
	})
	r.Register(Kind{
		Name:        KindMessage,
		Description: "Chat message",
		Fields:      []string{"message"},
		ConfigKeys:  []string{"telegramAuthToken", "telegramChatId", "telegramApiUrl"},
		validate:    validateMessage,
		build: func(c caller, ev scenario.Event, cfg scenario.Configuration) core.Action {
			return &messageAction{caller: c, event: ev, cfg: cfg}
		},
	})
	return r
}

// Register adds or replaces a kind. Kinds without a validator accept any
// data.
func (r *Registry) Register(k Kind) {
	r.kinds[k.Name] = k
}

// RegisterFunc adds a kind backed by a plain function, mostly for tests
// and exercises that need no external service.
func (r *Registry) RegisterFunc(name string, fn func(ev scenario.Event, cfg scenario.Configuration) core.Action) {
	r.Register(Kind{
		Name: name,
		build: func(_ caller, ev scenario.Event, cfg scenario.Configuration) core.Action {
			return fn(ev, cfg)
		},
	})
}

// Kinds lists the registered kinds sorted by name.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks that kind exists and data carries what it needs.
func (r *Registry) Validate(kind string, data map[string]any) error {
	k, ok := r.kinds[kind]
	if !ok {
		return fmt.Errorf("%w: %q", scenario.ErrUnknownKind, kind)
	}
	if k.validate == nil {
		return nil
	}
	return k.validate(data)
}

// Factory binds events to cfg. Configuration properties are only read when
// an action executes, so a missing property yields an exceptional report
// rather than a build failure.
func (r *Registry) Factory(cfg scenario.Configuration) scenario.Factory {
	return func(ev scenario.Event) (core.Action, error) {
		k, ok := r.kinds[ev.Kind]
		if !ok {
			return nil, fmt.Errorf("event %d: %w: %q", ev.ID, scenario.ErrUnknownKind, ev.Kind)
		}
		c := caller{client: r.client, debug: r.debug, id: ev.ID, kind: ev.Kind}
		return k.build(c, ev, cfg), nil
	}
}
