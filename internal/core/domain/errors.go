package domain

import "errors"

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccessDenied         = errors.New("access denied")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrCallNotFound         = errors.New("call not found")
	ErrPresenceNotFound     = errors.New("presence record not found")
	ErrValidation           = errors.New("invalid payload")
	ErrClientClosed         = errors.New("client closed")
)

// ErrorCode maps a failure to the stable code carried by the error
// event sent back to the initiating connection.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrChannelNotFound),
		errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrCallNotFound),
		errors.Is(err, ErrPresenceNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	default:
		return "internal_error"
	}
}
