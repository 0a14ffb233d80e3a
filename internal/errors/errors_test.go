package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCode(t *testing.T) {
	base := ConfigInvalid("reservoir size must not be negative")
	wrapped := Wrap(base, "failed to build engine")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.Contains(t, wrapped.Error(), "reservoir size must not be negative")
	assert.True(t, stderrors.Is(wrapped, base))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, Wrapf(nil, "ignored %d", 1))
	assert.Nil(t, WithCode(CodeInvalidInput, nil))
}

func TestWrapForeignError(t *testing.T) {
	err := Wrapf(fmt.Errorf("disk full"), "writing %s", "out.json")
	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.Equal(t, "writing out.json: disk full", err.Error())
}

func TestCancelledMatchesContextError(t *testing.T) {
	err := Cancelled(context.Canceled)
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Equal(t, CodeCancelled, GetCode(err))
}

func TestGetCodeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", InvalidInput("no file in request"))
	assert.True(t, IsAppError(err))
	assert.Equal(t, CodeInvalidInput, GetCode(err))
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
}
