package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeInputInvalid, "word too long").WithContext("length", 99)
	msg := err.Error()
	assert.Contains(t, msg, "[INPUT_INVALID]")
	assert.Contains(t, msg, "word too long")
	assert.Contains(t, msg, "length: 99")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestWrapPreservesUnderlying(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeCoordinationUnavailable, "lock store down")

	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetCode(nil))
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrCodeBudgetExceeded, GetCode(New(ErrCodeBudgetExceeded, "cap hit")))
	assert.True(t, IsCode(New(ErrCodeWordNotFound, "nope"), ErrCodeWordNotFound))
}

func TestRetryable(t *testing.T) {
	err := New(ErrCodeMalformedModelOutput, "bad json").WithRetryable(true)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(New(ErrCodeSchemaValidation, "fatal")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestForUser(t *testing.T) {
	err := New(ErrCodeBudgetExceeded, "monthly spend 101% of cap").
		WithUserMessage("service is over budget, try again later")
	assert.Equal(t, "service is over budget, try again later", err.ForUser())

	plain := New(ErrCodeInputInvalid, "bad shape")
	assert.Equal(t, "bad shape", plain.ForUser())
}
