package ctrlerrors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestWrapPreservesUnwrap(t *testing.T) {
	base := fmt.Errorf("boom")
	err := WrapInvalid(base, "resolver", "connect", "merge networks")
	assert.ErrorIs(t, err, base)
	assert.True(t, IsInvalid(err))
	assert.False(t, IsFatal(err))
}

func TestIllegalParameterIsInvalid(t *testing.T) {
	err := IllegalParameter("network", "connect", "element count mismatch: 3 vs 5")
	assert.True(t, IsInvalid(err))
	assert.ErrorIs(t, err, ErrIllegalParameter)
}

func TestIllegalVariableNetworkIsInvalid(t *testing.T) {
	err := IllegalVariableNetwork("resolver", "resolve", "no feeder for network X")
	assert.True(t, IsInvalid(err))
	assert.ErrorIs(t, err, ErrIllegalVariableNetwork)
}

func TestNotYetImplementedIsFatal(t *testing.T) {
	err := NotYetImplemented("resolver", "dispatch", "device-to-device fan-in")
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrNotYetImplemented)
}

func TestLogicErrorIsFatal(t *testing.T) {
	err := LogicError("fanout", "write", "write on read-only threaded fan-out")
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrLogicError)
}

func TestTestsStalledSentinelIsFatal(t *testing.T) {
	wrapped := WrapFatal(ErrTestsStalled, "testable", "stepApplication", "await quiescence")
	assert.True(t, IsFatal(wrapped))
	assert.ErrorIs(t, wrapped, ErrTestsStalled)
}

func TestIsTransientDetectsContextErrors(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(fmt.Errorf("connection reset by peer")))
	assert.False(t, IsTransient(nil))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("unclassified oddity")))
	assert.Equal(t, ErrorInvalid, Classify(ErrIllegalParameter))
	assert.Equal(t, ErrorFatal, Classify(ErrLogicError))
}

func TestReconnectPolicyShouldRetry(t *testing.T) {
	rp := DefaultReconnectPolicy()
	transientErr := fmt.Errorf("connection lost")
	assert.True(t, rp.ShouldRetry(transientErr, 0))
	assert.False(t, rp.ShouldRetry(transientErr, rp.MaxAttempts))
	assert.False(t, rp.ShouldRetry(nil, 0))
}

func TestReconnectPolicyToRetryConfig(t *testing.T) {
	rp := DefaultReconnectPolicy()
	cfg := rp.ToRetryConfig()
	assert.Equal(t, rp.MaxAttempts+1, cfg.MaxAttempts)
	assert.True(t, cfg.AddJitter)
}
