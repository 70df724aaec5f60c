package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	cause := stderrors.New("boom")

	assert.Equal(t, "[NOT_FOUND] suggestion abc not found", NotFound("suggestion %s not found", "abc").Error())
	assert.Equal(t, "[INTERNAL] failed to save: boom", Internal("failed to save", cause).Error())
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, ErrCodeLLMUnavailable, "generate")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("outer: %w", err), cause)
}

func TestIsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{name: "direct", err: PermissionDenied("location %s", "home"), code: ErrCodePermissionDenied, want: true},
		{name: "wrapped", err: fmt.Errorf("ctx: %w", FailedPrecondition("not suggested")), code: ErrCodeFailedPrecondition, want: true},
		{name: "other code", err: ValidationFailed("bad", nil), code: ErrCodeNotFound, want: false},
		{name: "plain error", err: stderrors.New("plain"), code: ErrCodeInternal, want: false},
		{name: "nil", err: nil, code: ErrCodeInternal, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCode(tt.err, tt.code))
		})
	}
}

func TestGetCodeDefault(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("plain"), ErrCodeInternal))
	assert.Equal(t, ErrCodeTimeout, GetCode(Timeout("slow"), ErrCodeInternal))
}

func TestAIResponseInvalidPath(t *testing.T) {
	err := AIResponseInvalid("suggestions[0].confidence", stderrors.New("must be <= 1"))
	assert.Equal(t, "suggestions[0].confidence", err.Context["path"])

	noPath := AIResponseInvalid("", stderrors.New("not json"))
	assert.Nil(t, noPath.Context)
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ErrCodeTimeout},
		{name: "canceled", err: fmt.Errorf("call: %w", context.Canceled), want: ErrCodeContextCanceled},
		{name: "other", err: stderrors.New("503"), want: ErrCodeLLMUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromContext(tt.err, ErrCodeLLMUnavailable, "generate")
			assert.Equal(t, tt.want, err.Code)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestWithContext(t *testing.T) {
	err := NotFound("missing").WithContext("id", "p1").WithContext("user_id", int32(7))
	assert.Equal(t, map[string]any{"id": "p1", "user_id": int32(7)}, err.Context)
}
