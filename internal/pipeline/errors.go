package pipeline

import (
	"errors"
	"fmt"

	"confsentry/internal/jsonx"
)

// ValidationError reports a stage output that parsed as JSON but violated
// the stage's contract. Retryable: the error text is fed back into the
// next attempt's prompt.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
}

// VendorMismatchError reports the stage 1 consistency heuristic firing:
// the raw configuration names a known vendor that does not match the
// declared one.
type VendorMismatchError struct {
	Declared string
	Found    string
}

func (e *VendorMismatchError) Error() string {
	return fmt.Sprintf("vendor mismatch: configuration text mentions %q but response declared %q", e.Found, e.Declared)
}

// InvariantKind identifies which cross-cutting invariant was violated.
type InvariantKind string

const (
	InvariantCheckIDSetMismatch InvariantKind = "check_id_set_mismatch"
	InvariantDuplicateCheckID   InvariantKind = "duplicate_check_id"
	InvariantScoreOutOfRange    InvariantKind = "score_out_of_range"
)

// InvariantViolationError is fatal to the run: it means data that already
// passed validation is internally inconsistent, so retrying the model
// cannot help.
type InvariantViolationError struct {
	Kind   InvariantKind
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation (%s): %s", e.Kind, e.Detail)
}

// StageExhaustedError reports that a stage burned through its retry budget.
// Fatal to the run; Last preserves the final attempt's error.
type StageExhaustedError struct {
	Stage    Stage
	Attempts int
	Last     error
}

func (e *StageExhaustedError) Error() string {
	return fmt.Sprintf("%s exhausted after %d attempts: %v", e.Stage, e.Attempts, e.Last)
}

func (e *StageExhaustedError) Unwrap() error { return e.Last }

// retryable reports whether an error is eligible for another attempt
// within the same stage. Extraction, repair, and validation failures are
// retryable with the error text fed back into the prompt; backend
// timeouts and outages count as failed attempts too. Invariant violations
// are terminal: they mean data that already validated is inconsistent, so
// another model call cannot help.
func retryable(err error) bool {
	var iv *InvariantViolationError
	return !errors.As(err, &iv)
}

// promptFeedback extracts the part of an attempt error worth echoing back
// to the model. Backend transport failures carry nothing the model can
// act on, so only contract errors produce feedback.
func promptFeedback(err error) string {
	var ve *ValidationError
	var vm *VendorMismatchError
	var ur *jsonx.UnrepairableError
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &vm):
		return vm.Error()
	case errors.As(err, &ur):
		return "the response was not parseable JSON; return a single well-formed JSON object"
	case errors.Is(err, jsonx.ErrNoJSONFound):
		return "the response contained no JSON object; return a single well-formed JSON object"
	}
	return ""
}
