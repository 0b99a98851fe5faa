package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_CodeAndSeverity(t *testing.T) {
	cause := errors.New("device busy")

	cases := []struct {
		name     string
		err      *AppError
		code     ErrorCode
		severity Severity
	}{
		{"recipient not registered", RecipientNotRegisteredError(), ErrCodeRecipientNotRegistered, SeverityIgnorable},
		{"send failed", SendFailedError(cause), ErrCodeSendFailed, SeverityRetryable},
		{"connection dropped", ConnectionDroppedError(cause), ErrCodeConnectionDropped, SeverityRetryable},
		{"microphone denied", MicrophoneDeniedError(cause), ErrCodeMicrophoneDenied, SeverityFatalSession},
		{"join failed", JoinFailedError(cause), ErrCodeJoinFailed, SeverityFatalSession},
		{"token expired", TokenExpiredError(), ErrCodeTokenExpired, SeverityFatalSession},
		{"identity collision", IdentityCollisionError(42), ErrCodeIdentityCollision, SeverityFatalSession},
		{"upload failed", UploadFailedError(cause), ErrCodeUploadFailed, SeverityFatalNonBlocking},
		{"persist failed", PersistFailedError(cause), ErrCodePersistFailed, SeverityFatalNonBlocking},
		{"camera unavailable", CameraUnavailableError(cause), ErrCodeCameraUnavailable, SeverityFatalNonBlocking},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.severity, tc.err.Severity)
			assert.True(t, HasCode(tc.err, tc.code))
		})
	}
}

func TestCameraUnavailableError_PreservesCause(t *testing.T) {
	cause := errors.New("no capture device")
	err := CameraUnavailableError(cause)

	assert.ErrorIs(t, err, cause)
	assert.NotEqual(t, SeverityFatalSession, err.Severity,
		"a missing camera degrades the call, it never ends it")
}

func TestHasCode_WrappedAndForeignErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", UploadFailedError(errors.New("disk full")))

	assert.True(t, HasCode(wrapped, ErrCodeUploadFailed))
	assert.False(t, HasCode(wrapped, ErrCodePersistFailed))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeUploadFailed))
}

func TestSeverityOf_DefaultsUnknownToFatal(t *testing.T) {
	assert.Equal(t, SeverityIgnorable, SeverityOf(RecipientNotRegisteredError()))
	assert.Equal(t, SeverityFatalSession, SeverityOf(errors.New("unclassified")))
}

func TestGetAppError(t *testing.T) {
	app := PersistFailedError(errors.New("500"))
	require.Same(t, app, GetAppError(fmt.Errorf("wrapped: %w", app)))

	unknown := GetAppError(errors.New("plain"))
	assert.Equal(t, ErrCodeInternal, unknown.Code)
	assert.Equal(t, SeverityFatalSession, unknown.Severity)
}
