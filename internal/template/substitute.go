// Package template renders event data into outbound requests: ${var}
// placeholders, ${env:VAR} lookups, built-in functions like ${uuid()}, and
// JSON extraction from responses.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"tabletop/internal/core"
)

// varPattern matches ${var}, ${env:VAR} and ${fn(args)} placeholders.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Substitute replaces every placeholder in text.
// Returns all errors joined if several placeholders cannot be resolved.
func Substitute(text string, vars core.Variables) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var errs []error
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		val, err := resolve(match[2:len(match)-1], vars)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return fmt.Sprint(val)
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return result, nil
}

func resolve(name string, vars core.Variables) (any, error) {
	if envName, ok := strings.CutPrefix(name, "env:"); ok {
		if val, ok := os.LookupEnv(envName); ok {
			return val, nil
		}
		return nil, fmt.Errorf("env var %q not set", envName)
	}

	if val, isFunc, err := evalFunction(name, vars); isFunc {
		return val, err
	}

	if val, ok := lookup(name, vars); ok {
		return val, nil
	}
	return nil, fmt.Errorf("variable %q not found", name)
}

// lookup resolves name directly, then as a dotted path into nested maps,
// so ${position.lat} reads the lat key of the position variable.
func lookup(name string, vars core.Variables) (any, bool) {
	if vars == nil {
		return nil, false
	}
	if val, ok := vars.Get(name); ok {
		return val, true
	}
	head, rest, found := strings.Cut(name, ".")
	if !found {
		return nil, false
	}
	val, ok := vars.Get(head)
	if !ok {
		return nil, false
	}
	for _, key := range strings.Split(rest, ".") {
		m, ok := val.(map[string]any)
		if !ok {
			return nil, false
		}
		if val, ok = m[key]; !ok {
			return nil, false
		}
	}
	return val, true
}

// Render substitutes placeholders in every string inside a decoded JSON or
// YAML value. A string that is exactly one placeholder is replaced by the
// raw variable value, so numbers and objects keep their type.
func Render(value any, vars core.Variables) (any, error) {
	switch v := value.(type) {
	case string:
		if m := varPattern.FindStringSubmatchIndex(v); m != nil && m[0] == 0 && m[1] == len(v) {
			return resolve(v[2:len(v)-1], vars)
		}
		return Substitute(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		var errs []error
		for _, k := range sortedKeys(v) {
			r, err := Render(v[k], vars)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				continue
			}
			out[k] = r
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := Render(item, vars)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return value, nil
	}
}

// SubstituteMap applies substitution to all values in a map.
// Returns all errors joined if any substitution fails.
func SubstituteMap(m map[string]string, vars core.Variables) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]string, len(m))
	var errs []error

	for k, v := range m {
		substituted, err := Substitute(v, vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("key %q: %w", k, err))
			continue
		}
		result[k] = substituted
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
