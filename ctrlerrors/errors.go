// Package ctrlerrors provides standardized error classification and wrapping
// for ctrlmesh components: the declarative graph API, the connection
// resolver, the runtime, and the testable-mode scheduler all raise and
// classify errors through this package instead of ad-hoc error strings.
package ctrlerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ctrlmesh/ctrlmesh/pkg/retry"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried (transport
	// errors surfaced from a device backend or control-system adapter).
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents malformed or structurally inconsistent
	// declarations (IllegalParameter, IllegalVariableNetwork).
	ErrorInvalid
	// ErrorFatal represents unrecoverable conditions that abort startup or
	// a running test (NotYetImplemented, LogicError, TestsStalled).
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinel errors named directly after the error kinds in spec §7.
var (
	// ErrIllegalParameter: malformed declarations (bad application name,
	// mismatched element counts, incompatible fan-out shape, write to a
	// receiving implementation).
	ErrIllegalParameter = errors.New("illegal parameter")
	// ErrIllegalVariableNetwork: structural mis-wirings found during
	// connect/resolve (two nodes already in different networks, constant
	// used as a trigger, network with no feeder).
	ErrIllegalVariableNetwork = errors.New("illegal variable network")
	// ErrNotYetImplemented: an otherwise-valid combination the resolver
	// does not handle.
	ErrNotYetImplemented = errors.New("not yet implemented")
	// ErrLogicError: runtime misuse, such as a read on a write-only
	// fan-out or a write on a read-only one.
	ErrLogicError = errors.New("logic error")
	// ErrTestsStalled: testable-mode quiescence is impossible.
	ErrTestsStalled = errors.New("tests stalled")

	// ErrAlreadyRunning / ErrNotRunning: Application lifecycle misuse.
	ErrAlreadyRunning = errors.New("application already running")
	ErrNotRunning     = errors.New("application not running")
	ErrAlreadyFrozen  = errors.New("variable network already frozen")
)

// ClassifiedError wraps an error with its classification and the
// component/operation that raised it.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap adds "component.operation: action failed: %w" context to err.
func Wrap(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, operation, action, err)
}

// WrapTransient wraps err as ErrorTransient.
func WrapTransient(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, operation, action)
	return newClassified(ErrorTransient, wrapped, component, operation, wrapped.Error())
}

// WrapFatal wraps err as ErrorFatal.
func WrapFatal(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, operation, action)
	return newClassified(ErrorFatal, wrapped, component, operation, wrapped.Error())
}

// WrapInvalid wraps err as ErrorInvalid.
func WrapInvalid(err error, component, operation, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, operation, action)
	return newClassified(ErrorInvalid, wrapped, component, operation, wrapped.Error())
}

// IllegalParameter builds a classified ErrIllegalParameter with detail context.
func IllegalParameter(component, operation, detail string) error {
	return WrapInvalid(fmt.Errorf("%w: %s", ErrIllegalParameter, detail), component, operation, "validate parameter")
}

// IllegalVariableNetwork builds a classified ErrIllegalVariableNetwork with a diagnostic dump.
func IllegalVariableNetwork(component, operation, diagnostic string) error {
	return WrapInvalid(fmt.Errorf("%w: %s", ErrIllegalVariableNetwork, diagnostic), component, operation, "resolve network")
}

// NotYetImplemented builds a classified ErrNotYetImplemented.
func NotYetImplemented(component, operation, detail string) error {
	return WrapFatal(fmt.Errorf("%w: %s", ErrNotYetImplemented, detail), component, operation, "dispatch")
}

// LogicError builds a classified ErrLogicError.
func LogicError(component, operation, detail string) error {
	return WrapFatal(fmt.Errorf("%w: %s", ErrLogicError, detail), component, operation, "runtime check")
}

// TestsStalled builds a classified ErrTestsStalled carrying a listing of the
// variables that still have pending versions, per §4.7's stall report.
func TestsStalled(component, operation, listing string) error {
	return WrapFatal(fmt.Errorf("%w: %s", ErrTestsStalled, listing), component, operation, "stepApplication")
}

// IsTransient reports whether err is classified transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "network", "temporary", "unavailable", "busy"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err is classified fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}
	return errors.Is(err, ErrNotYetImplemented) || errors.Is(err, ErrLogicError) || errors.Is(err, ErrTestsStalled)
}

// IsInvalid reports whether err is classified invalid.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}
	return errors.Is(err, ErrIllegalParameter) || errors.Is(err, ErrIllegalVariableNetwork)
}

// Classify returns the error class for err, defaulting to transient for
// unclassified errors so callers that retry on failure keep doing so.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

// ReconnectPolicy configures backoff for device-backend and control-system
// adapter reconnect attempts. The bundled NATS adapter does not use it; it
// retries with retry.Persistent() directly.
type ReconnectPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultReconnectPolicy returns 10 additional attempts with exponential
// backoff (factor 2) from 100ms up to 5s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:   10,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ShouldRetry reports whether attempt should be retried under rp given err.
func (rp ReconnectPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rp.MaxAttempts {
		return false
	}
	return IsTransient(err)
}

// ToRetryConfig bridges a ReconnectPolicy into pkg/retry's Config, adding 1
// to MaxAttempts (additional attempts -> total attempts) and always enabling
// jitter.
func (rp ReconnectPolicy) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rp.MaxAttempts + 1,
		InitialDelay: rp.InitialDelay,
		MaxDelay:     rp.MaxDelay,
		Multiplier:   rp.BackoffFactor,
		AddJitter:    true,
	}
}
