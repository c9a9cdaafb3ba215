package template

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tabletop/internal/core"
)

// TimeVar names the variable holding the scenario time of the event being
// rendered. When set, the time functions report it instead of wall time.
const TimeVar = "event.time"

type builtin func(args string, vars core.Variables) (string, error)

var funcRegistry map[string]builtin

func init() {
	funcRegistry = map[string]builtin{
		"uuid":          fnUUID,
		"timestamp":     fnTimestamp,
		"timestamp_ms":  fnTimestampMs,
		"random":        fnRandom,
		"random_string": fnRandomString,
		"date":          fnDate,
	}
}

// evalFunction evaluates a built-in function call such as uuid() or
// random(1,10). The second result is false when expr is not a known call.
func evalFunction(expr string, vars core.Variables) (string, bool, error) {
	parenIdx := strings.Index(expr, "(")
	if parenIdx == -1 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}

	funcName := expr[:parenIdx]
	args := expr[parenIdx+1 : len(expr)-1]

	fn, ok := funcRegistry[funcName]
	if !ok {
		return "", false, nil
	}

	result, err := fn(args, vars)
	if err != nil {
		return "", true, fmt.Errorf("function %s: %w", funcName, err)
	}
	return result, true, nil
}

// scenarioTime returns the event's scenario time, or now outside an event.
func scenarioTime(vars core.Variables) time.Time {
	if vars != nil {
		if v, ok := vars.Get(TimeVar); ok {
			if t, ok := v.(time.Time); ok {
				return t
			}
		}
	}
	return time.Now()
}

func fnUUID(args string, _ core.Variables) (string, error) {
	if args != "" {
		return "", fmt.Errorf("uuid() takes no arguments")
	}
	return uuid.NewString(), nil
}

// fnTimestamp returns the Unix timestamp in seconds.
func fnTimestamp(args string, vars core.Variables) (string, error) {
	if args != "" {
		return "", fmt.Errorf("timestamp() takes no arguments")
	}
	return strconv.FormatInt(scenarioTime(vars).Unix(), 10), nil
}

func fnTimestampMs(args string, vars core.Variables) (string, error) {
	if args != "" {
		return "", fmt.Errorf("timestamp_ms() takes no arguments")
	}
	return strconv.FormatInt(scenarioTime(vars).UnixMilli(), 10), nil
}

// fnRandom generates a random integer between min and max (inclusive).
// Usage: random(min,max)
func fnRandom(args string, _ core.Variables) (string, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 2 {
		return "", fmt.Errorf("random(min,max) requires exactly 2 arguments")
	}

	lo, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}
	hi, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}
	if lo > hi {
		return "", fmt.Errorf("min (%d) must be <= max (%d)", lo, hi)
	}

	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(lo+n.Int64(), 10), nil
}

// fnRandomString generates a random alphanumeric string.
// Usage: random_string(length)
func fnRandomString(args string, _ core.Variables) (string, error) {
	length, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "", fmt.Errorf("invalid length: %w", err)
	}
	if length <= 0 || length > 1000 {
		return "", fmt.Errorf("length must be in 1..1000")
	}

	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// fnDate formats the scenario time using Go's reference layout, in UTC.
// Usage: date(2006-01-02) or date() for RFC 3339.
func fnDate(args string, vars core.Variables) (string, error) {
	layout := strings.TrimSpace(args)
	if layout == "" {
		layout = time.RFC3339
	}
	return scenarioTime(vars).UTC().Format(layout), nil
}
