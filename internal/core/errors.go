package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	ErrMissingIdentity       = errors.New("missing identity")
	ErrTokenRequestFailed    = errors.New("playback token request failed")
	ErrPremiumRequired       = errors.New("spotify premium required")
	ErrScopesMissing         = errors.New("spotify scopes missing")
	ErrPlaybackUnavailable   = errors.New("playback not available for this account")
	ErrSDKLoadFailed         = errors.New("player platform failed to load")
	ErrUnsupportedPlatform   = errors.New("protected media playback not supported")
	ErrConnect               = errors.New("player connect rejected")
	ErrSessionNotReady       = errors.New("playback session not ready")
	ErrNoActiveDevice        = errors.New("no active device")
	ErrPlaybackCommandFailed = errors.New("playback command failed")
)

var kindCodes = map[error]string{
	ErrMissingIdentity:       "missing_identity",
	ErrTokenRequestFailed:    "token_request_failed",
	ErrPremiumRequired:       "premium_required",
	ErrScopesMissing:         "scopes_missing",
	ErrPlaybackUnavailable:   "playback_unavailable",
	ErrSDKLoadFailed:         "sdk_load_failed",
	ErrUnsupportedPlatform:   "unsupported_platform",
	ErrConnect:               "connect_failed",
	ErrSessionNotReady:       "session_not_ready",
	ErrNoActiveDevice:        "no_active_device",
	ErrPlaybackCommandFailed: "command_failed",
}

// Error is a classified playback failure.
type Error struct {
	Kind error
	// Detail is the human-readable message reported by the failing party, if any
	Detail string
	// Scopes lists the authorization scopes the account still has to grant
	Scopes []string
	// Status is the HTTP status the remote API answered with, 0 if none
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if len(e.Scopes) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(e.Scopes, ", "))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error's kind, so errors.Is(err, ErrNoActiveDevice) works through wrapping.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// NewError builds a classified error around cause.
func NewError(kind error, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// KindOf returns the classified kind of err, or nil when err is not a playback error.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for kind := range kindCodes {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindCode returns a stable machine-readable code for err's kind, "internal" when unclassified.
func KindCode(err error) string {
	if code, ok := kindCodes[KindOf(err)]; ok {
		return code
	}
	return "internal"
}

// MissingScopes returns the scopes carried by err, if any.
func MissingScopes(err error) []string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Scopes
	}
	return nil
}

// Detail returns the remote-reported detail carried by err, if any.
func Detail(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Detail
	}
	return ""
}
