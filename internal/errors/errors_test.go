package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVeltoErrorMessage(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewIOError(ErrCodeStaticRead, "reading asset", cause).WithPath("static/app.css")

	assert.Equal(t, "[ERR_STATIC_READ] static/app.css reading asset: permission denied", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestVeltoErrorIs(t *testing.T) {
	err := fmt.Errorf("negotiating: %w",
		NewNetworkError(ErrCodePortRangeExhausted, "no free port", nil))

	assert.True(t, errors.Is(err, &VeltoError{Type: ErrorTypeNetwork, Code: ErrCodePortRangeExhausted}))
	assert.False(t, errors.Is(err, &VeltoError{Type: ErrorTypeIO, Code: ErrCodePortRangeExhausted}))
	assert.True(t, HasCode(err, ErrCodePortRangeExhausted))
	assert.False(t, HasCode(errors.New("plain"), ErrCodePortRangeExhausted))
}

func TestIsSecurityError(t *testing.T) {
	assert.True(t, IsSecurityError(NewSecurityError(ErrCodePathTraversal, "escapes root")))
	assert.False(t, IsSecurityError(NewConfigError(ErrCodeConfigInvalid, "bad port")))
	assert.False(t, IsSecurityError(nil))
}

func TestWithContext(t *testing.T) {
	err := NewInternalError(ErrCodeHandlerPanic, "handler panicked", nil).
		WithContext("path", "/boom").
		WithContext("method", "GET")

	assert.Equal(t, "/boom", err.Context["path"])
	assert.Equal(t, "GET", err.Context["method"])
}
