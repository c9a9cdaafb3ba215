package core

import (
	"context"
	"sync"
)

// Variables provides values for template substitution in actions.
type Variables interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapVariables is a map-based Variables implementation, safe for concurrent use.
type MapVariables struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewVariables() *MapVariables {
	return &MapVariables{data: make(map[string]any)}
}

// VariablesFrom copies each map into a new MapVariables; later maps win on key collision.
func VariablesFrom(maps ...map[string]any) *MapVariables {
	v := NewVariables()
	for _, m := range maps {
		for k, val := range m {
			v.data[k] = val
		}
	}
	return v
}

func (v *MapVariables) Get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.data[key]
	return val, ok
}

func (v *MapVariables) Set(key string, value any) {
	v.mu.Lock()
	v.data[key] = value
	v.mu.Unlock()
}

// Context key for passing the executing action's identity to helpers.
type contextKey string

const actionIDContextKey contextKey = "actionID"

func ContextWithActionID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, actionIDContextKey, id)
}

func ActionIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(actionIDContextKey).(int64); ok {
		return id
	}
	return 0
}
