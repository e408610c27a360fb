// Package playback keeps a locally rendered transport in sync with a remote,
// event-driven player: session lifecycle, state reconciliation, track-switch
// choreography and optimistic seeking.
package playback

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"playdeck/internal/core"
	"playdeck/internal/i18n"
)

// Recorder receives controller metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	Command(name string, err error)
	Status(status core.Status)
	Reconcile(decision string)
	TokenRequest(err error)
}

type nopRecorder struct{}

func (nopRecorder) Command(string, error) {}
func (nopRecorder) Status(core.Status)    {}
func (nopRecorder) Reconcile(string)      {}
func (nopRecorder) TokenRequest(error)    {}

// Options holds the collaborators of a Controller. Loader, Tokens and Commands are required.
type Options struct {
	Config    core.PlaybackConfig
	Loader    Loader
	Tokens    core.TokenFetcher
	Commands  core.Commander
	Probe     core.ProtectedMediaProbe
	Observer  core.TrackObserver
	Metrics   Recorder
	Localizer *i18n.Localizer
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	Status     core.Status `json:"status"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  string      `json:"errorKind,omitempty"`
	Product    string      `json:"product,omitempty"`
	Track      *core.Track `json:"track,omitempty"`
	PositionMs int         `json:"positionMs"`
	DurationMs int         `json:"durationMs"`
	Paused     bool        `json:"paused"`
	Volume     float64     `json:"volume"`
	DeviceID   string      `json:"deviceId,omitempty"`
	Message    string      `json:"message"`
}

// view is the rendered playback state, rebuilt as a whole by the reconciler.
type view struct {
	track      *core.Track
	positionMs int
	durationMs int
	paused     bool
}

type seekIntent struct {
	targetMs int
	issuedAt time.Time
	baseMs   int
}

type switchIntent struct {
	trackID        string
	previousVolume float64
}

// session is the mutable record of one connected period. It is private to
// the controller and only touched with the controller mutex held.
type session struct {
	gen      uint64
	identity string
	ctx      context.Context
	cancel   context.CancelFunc

	remote         core.Remote
	deviceID       string
	ready          bool
	currentTrackID string
	seek           *seekIntent
	sw             *switchIntent
	stopInterp     context.CancelFunc
}

// Controller owns at most one remote player session and exposes the control surface.
type Controller struct {
	cfg       core.PlaybackConfig
	loader    Loader
	tokens    core.TokenFetcher
	commands  core.Commander
	probe     core.ProtectedMediaProbe
	observer  core.TrackObserver
	metrics   Recorder
	localizer *i18n.Localizer
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	enabled   bool
	identity  string
	product   string
	lastErr   error
	view      view
	volume    float64
	gen       uint64
	sess      *session
	closed    bool
	listeners []func(Snapshot)
}

// New creates a disabled controller.
func New(opts Options) *Controller {
	cfg := opts.Config
	defaults := core.DefaultPlaybackConfig()
	if cfg.PlayerName == "" {
		cfg.PlayerName = defaults.PlayerName
	}
	if cfg.InitialVolume <= 0 || cfg.InitialVolume > 1 {
		cfg.InitialVolume = defaults.InitialVolume
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.PauseConfirmInterval <= 0 {
		cfg.PauseConfirmInterval = defaults.PauseConfirmInterval
	}
	if cfg.InterpolationInterval <= 0 {
		cfg.InterpolationInterval = defaults.InterpolationInterval
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaults.CommandTimeout
	}

	c := &Controller{
		cfg:       cfg,
		loader:    opts.Loader,
		tokens:    opts.Tokens,
		commands:  opts.Commands,
		probe:     opts.Probe,
		observer:  opts.Observer,
		metrics:   opts.Metrics,
		localizer: opts.Localizer,
		logger:    opts.Logger,
		now:       opts.Clock,
		volume:    cfg.InitialVolume,
	}
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	if c.localizer == nil {
		c.localizer = i18n.NewLocalizer(i18n.DefaultLanguage)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Status returns the current lifecycle status.
func (c *Controller) Status() core.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Identity returns the identity the controller is configured with.
func (c *Controller) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// OnUpdate registers fn to receive a snapshot after every observable change.
// fn runs on the goroutine that made the change and must not block.
func (c *Controller) OnUpdate(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// statusLocked derives the status from enablement, identity, session readiness and the last error.
func (c *Controller) statusLocked() core.Status {
	switch {
	case !c.enabled:
		return core.StatusDisabled
	case c.identity == "":
		return core.StatusNeedsIdentity
	case c.lastErr != nil:
		return core.StatusError
	case c.sess != nil && c.sess.ready:
		return core.StatusReady
	default:
		return core.StatusLoading
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	status := c.statusLocked()
	snap := Snapshot{
		Status:     status,
		Product:    c.product,
		PositionMs: c.view.positionMs,
		DurationMs: c.view.durationMs,
		Paused:     c.view.paused,
		Volume:     c.volume,
	}
	if c.view.track != nil {
		track := *c.view.track
		snap.Track = &track
	}
	if c.sess != nil && c.sess.ready {
		snap.DeviceID = c.sess.deviceID
	}

	switch status {
	case core.StatusDisabled:
		snap.Message = c.localizer.T("status.disabled")
	case core.StatusNeedsIdentity:
		snap.Message = c.localizer.T("status.needs_identity")
	case core.StatusLoading:
		snap.Message = c.localizer.T("status.loading")
	case core.StatusReady:
		snap.Message = c.localizer.T("status.ready_device", c.cfg.PlayerName)
	case core.StatusError:
		snap.Error = Describe(c.localizer, c.lastErr)
		snap.ErrorKind = core.KindCode(c.lastErr)
		snap.Message = snap.Error
	}
	return snap
}

// publish hands the current snapshot to every listener. Call without the mutex held.
func (c *Controller) publish() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	listeners := make([]func(Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	c.metrics.Status(snap.Status)
	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Controller) currentLocked(gen uint64) bool {
	return c.sess != nil && c.sess.gen == gen && gen == c.gen
}

// Describe renders err as a user-facing message in the localizer's language.
func Describe(l *i18n.Localizer, err error) string {
	if err == nil {
		return ""
	}
	kind := core.KindOf(err)
	switch kind {
	case nil:
		return l.T("error.generic")
	case core.ErrScopesMissing:
		return l.T("error.scopes_missing", strings.Join(core.MissingScopes(err), ", "))
	case core.ErrNoActiveDevice, core.ErrMissingIdentity, core.ErrSessionNotReady:
		return l.T("error." + core.KindCode(err))
	}
	if detail := core.Detail(err); detail != "" {
		return detail
	}
	return l.T("error." + core.KindCode(err))
}

func clampPosition(positionMs, durationMs int) int {
	if positionMs < 0 {
		return 0
	}
	if durationMs > 0 && positionMs > durationMs {
		return durationMs
	}
	return positionMs
}

func clampVolume(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
