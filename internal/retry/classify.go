package retry

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Class is the outcome of classifying a failure
type Class int

const (
	// Permanent failures are propagated to the caller unchanged.
	Permanent Class = iota
	// Transient failures are retried while the attempt budget allows.
	Transient
)

// String returns the class name.
func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// transientMarkers are matched case-insensitively against failure messages.
var transientMarkers = []string{"overloaded", "quota", "resource_exhausted"}

// Failure is the normalized description of a failed outbound call.
// Transports map their raw errors into a Failure before the retry loop sees them.
type Failure struct {
	// Status is the remote status code, 0 when none was observed.
	Status int
	// Message is the human-readable failure text.
	Message string
	// Err is the raw error, if any.
	Err error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	switch {
	case f.Status != 0 && f.Message != "":
		return fmt.Sprintf("status %d: %s", f.Status, f.Message)
	case f.Status != 0:
		return fmt.Sprintf("status %d", f.Status)
	case f.Message != "":
		return f.Message
	case f.Err != nil:
		return f.Err.Error()
	default:
		return "call failed"
	}
}

// Unwrap returns the raw error for errors.Is/As compatibility.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Describe normalizes any error into a Failure. A Failure anywhere in the chain
// wins; otherwise only the message is known.
func Describe(err error) Failure {
	if err == nil {
		return Failure{}
	}
	var f *Failure
	if errors.As(err, &f) {
		return *f
	}
	return Failure{Message: err.Error(), Err: err}
}

// Classify is the single decision point for retryability.
func Classify(f Failure) Class {
	switch f.Status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return Transient
	}
	msg := strings.ToLower(f.Message)
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return Transient
		}
	}
	return Permanent
}

// IsTransient reports whether err is transient, either directly or because it
// is an exhausted retry of a transient failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return true
	}
	return Classify(Describe(err)) == Transient
}
