package core

import (
	"context"
	"errors"
)

// Status is the externally visible lifecycle state of a playback session.
type Status string

const (
	// StatusDisabled means playback is switched off and no session exists
	StatusDisabled Status = "disabled"
	// StatusNeedsIdentity means playback is on but no user identity is known
	StatusNeedsIdentity Status = "needs-identity"
	// StatusLoading means the session is being loaded, connected or re-acquired
	StatusLoading Status = "loading"
	// StatusReady means the remote device is assigned and accepts commands
	StatusReady Status = "ready"
	// StatusError means the session failed; the message explains why
	StatusError Status = "error"
)

// Event names emitted by a remote player.
type Event string

const (
	EventReady               Event = "ready"
	EventNotReady            Event = "not_ready"
	EventStateChanged        Event = "player_state_changed"
	EventInitializationError Event = "initialization_error"
	EventAuthenticationError Event = "authentication_error"
	EventAccountError        Event = "account_error"
	EventPlaybackError       Event = "playback_error"
)

// ErrorEvents lists the events that carry a failure message.
var ErrorEvents = []Event{
	EventInitializationError,
	EventAuthenticationError,
	EventAccountError,
	EventPlaybackError,
}

// Track is the metadata of the track a remote player reports as current.
type Track struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
}

// RemoteState is one raw state report from the remote player. A nil
// *RemoteState means the remote has no active playback context.
type RemoteState struct {
	Track      Track
	PositionMs int
	DurationMs int
	Paused     bool
}

// EventPayload carries the data of a remote event; which fields are set depends on the event.
type EventPayload struct {
	DeviceID string
	State    *RemoteState
	Message  string
}

// EventHandler receives remote events.
type EventHandler func(EventPayload)

// TokenFunc returns a fresh access token. Remote players call it whenever they need authorization.
type TokenFunc func(ctx context.Context) (string, error)

// Remote is the capability interface of an event-driven remote player.
type Remote interface {
	Connect(ctx context.Context) error
	Disconnect()
	On(event Event, handler EventHandler)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMs int) error
	GetState(ctx context.Context) (*RemoteState, error)
	Volume(ctx context.Context) (float64, error)
	SetVolume(ctx context.Context, level float64) error
}

// RemoteOptions configures a new remote player.
type RemoteOptions struct {
	Name   string
	Volume float64
	Token  TokenFunc
}

// RemoteFactory constructs remote players once the platform has been loaded.
type RemoteFactory interface {
	NewRemote(opts RemoteOptions) Remote
}

// RemoteFactoryFunc adapts a function to RemoteFactory.
type RemoteFactoryFunc func(opts RemoteOptions) Remote

// NewRemote calls f(opts).
func (f RemoteFactoryFunc) NewRemote(opts RemoteOptions) Remote {
	return f(opts)
}

// Commander issues bearer-authorized playback commands directly against the platform API.
type Commander interface {
	Play(ctx context.Context, accessToken, deviceID, trackID string) error
	Pause(ctx context.Context, accessToken, deviceID string) error
}

// PlaybackToken is the token bridge's answer for one identity.
type PlaybackToken struct {
	Eligible      bool     `json:"eligible"`
	Premium       *bool    `json:"premium,omitempty"`
	Product       string   `json:"product,omitempty"`
	MissingScopes []string `json:"missingScopes,omitempty"`
	AccessToken   string   `json:"accessToken,omitempty"`
}

// Authorize returns the access token if the account may use in-page playback.
func (t *PlaybackToken) Authorize() (string, error) {
	if t.Eligible && t.AccessToken != "" {
		return t.AccessToken, nil
	}

	if t.Premium != nil && !*t.Premium {
		return "", &Error{Kind: ErrPremiumRequired}
	}

	if len(t.MissingScopes) > 0 {
		return "", &Error{
			Kind:   ErrScopesMissing,
			Scopes: append([]string(nil), t.MissingScopes...),
		}
	}

	return "", &Error{Kind: ErrPlaybackUnavailable}
}

// TokenFetcher obtains playback tokens for an identity.
type TokenFetcher interface {
	Fetch(ctx context.Context, identity string) (*PlaybackToken, error)
}

// ProtectedMediaProbe reports whether this host can play protected media.
type ProtectedMediaProbe interface {
	Check() error
}

// TrackObserver is told about every track that becomes current on the remote device.
type TrackObserver interface {
	TrackStarted(identity string, track Track)
}

// IsTransient reports whether err is a context cancellation rather than a real failure.
func IsTransient(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
