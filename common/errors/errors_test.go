package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, ExitCode(0), ExitCodeOf(nil))
	assert.Nil(t, NewError(nil, RequestFailedExitCode))

	boom := pkgerrors.New("boom")
	assert.Equal(t, GenericFailureExitCode, ExitCodeOf(boom))

	err := NewError(boom, RequestCancelledExitCode)
	assert.Equal(t, RequestCancelledExitCode, err.GetExitCode())
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, boom, pkgerrors.Cause(err))

	wrapped := pkgerrors.Wrap(err, "running workload")
	assert.Equal(t, RequestCancelledExitCode, ExitCodeOf(wrapped))
}
