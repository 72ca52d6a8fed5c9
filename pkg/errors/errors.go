package apperrors

import "errors"

// Standardized session errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrLoginFailed          = errors.New("login failed")
	ErrNotReady             = errors.New("session not ready")
	ErrSessionFailed        = errors.New("session in failed state")
	ErrSubscribeRejected    = errors.New("subscribe rejected")
	ErrFrontDisconnected    = errors.New("front disconnected")
	ErrQueueFull            = errors.New("bridge queue full")
	ErrBridgeStopped        = errors.New("bridge stopped")
)
