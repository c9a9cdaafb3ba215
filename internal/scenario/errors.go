package scenario

import "errors"

// ErrNotFound is wrapped by every lookup failure of this package.
var ErrNotFound = errors.New("not found")

var (
	ErrScenarioNotFound      = notFound("scenario")
	ErrPhaseNotFound         = notFound("phase")
	ErrEventNotFound         = notFound("event")
	ErrConfigurationNotFound = notFound("configuration")

	ErrUnknownKind     = errors.New("unknown event kind")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrInvalidShift    = errors.New("shift would move an event before the scenario start")
	ErrStandardPhase   = errors.New("the standard phase cannot be discarded")
	ErrMissingProperty = errors.New("missing configuration property")
)

type notFoundError struct{ what string }

func notFound(what string) error { return &notFoundError{what: what} }

func (e *notFoundError) Error() string { return e.what + " not found" }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }
