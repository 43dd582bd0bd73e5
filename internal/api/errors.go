package api

import "errors"

// Error classes for backend calls. Callers branch on them with errors.Is.
var (
	// ErrNetwork covers transport failures and request timeouts.
	ErrNetwork = errors.New("network failure")

	// ErrRejected covers non-2xx replies outside the auth-failure class.
	ErrRejected = errors.New("request rejected")

	// ErrSessionExpired covers 401/403 replies: the server no longer
	// honors the session cookie.
	ErrSessionExpired = errors.New("session expired")

	// ErrProtocol covers replies whose shape the contract does not allow.
	ErrProtocol = errors.New("protocol violation")
)
