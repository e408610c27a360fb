package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"playdeck/internal/core"
)

type fakeRemote struct {
	mu       sync.Mutex
	opts     core.RemoteOptions
	handlers map[core.Event][]core.EventHandler
	state    *core.RemoteState
	volume   float64
	volumes  []float64
	calls    []string
	seeks    []int

	connectErr   error
	pauseErr     error
	resumeErr    error
	seekErr      error
	seekIsLagged bool
	onSeek       func(ms int)

	connected    bool
	disconnected bool
}

func newFakeRemote(opts core.RemoteOptions) *fakeRemote {
	return &fakeRemote{
		opts:     opts,
		handlers: make(map[core.Event][]core.EventHandler),
		volume:   opts.Volume,
	}
}

func (r *fakeRemote) record(call string) {
	r.calls = append(r.calls, call)
}

func (r *fakeRemote) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("connect")
	if r.connectErr != nil {
		return r.connectErr
	}
	r.connected = true
	return nil
}

func (r *fakeRemote) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("disconnect")
	r.disconnected = true
}

func (r *fakeRemote) On(event core.Event, handler core.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], handler)
}

func (r *fakeRemote) emit(event core.Event, payload core.EventPayload) {
	r.mu.Lock()
	handlers := append([]core.EventHandler(nil), r.handlers[event]...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (r *fakeRemote) emitState(state *core.RemoteState) {
	r.emit(core.EventStateChanged, core.EventPayload{State: state})
}

func (r *fakeRemote) Pause(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("pause")
	if r.pauseErr != nil {
		return r.pauseErr
	}
	if r.state != nil {
		r.state.Paused = true
	}
	return nil
}

func (r *fakeRemote) Resume(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("resume")
	if r.resumeErr != nil {
		return r.resumeErr
	}
	if r.state != nil {
		r.state.Paused = false
	}
	return nil
}

func (r *fakeRemote) Seek(ctx context.Context, positionMs int) error {
	r.mu.Lock()
	onSeek := r.onSeek
	r.record("seek")
	r.seeks = append(r.seeks, positionMs)
	err := r.seekErr
	if err == nil && !r.seekIsLagged && r.state != nil {
		r.state.PositionMs = positionMs
	}
	r.mu.Unlock()

	if onSeek != nil {
		onSeek(positionMs)
	}
	return err
}

func (r *fakeRemote) GetState(ctx context.Context) (*core.RemoteState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil, nil
	}
	state := *r.state
	return &state, nil
}

func (r *fakeRemote) Volume(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume, nil
}

func (r *fakeRemote) SetVolume(ctx context.Context, level float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("volume")
	r.volume = level
	r.volumes = append(r.volumes, level)
	return nil
}

func (r *fakeRemote) setState(state *core.RemoteState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

func (r *fakeRemote) currentVolume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

func (r *fakeRemote) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRemote) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == nil || r.state.Paused
}

// fakeFactory hands out a new fakeRemote per session.
type fakeFactory struct {
	mu      sync.Mutex
	remotes []*fakeRemote
	setup   func(*fakeRemote)
}

func (f *fakeFactory) NewRemote(opts core.RemoteOptions) core.Remote {
	r := newFakeRemote(opts)
	if f.setup != nil {
		f.setup(r)
	}
	f.mu.Lock()
	f.remotes = append(f.remotes, r)
	f.mu.Unlock()
	return r
}

func (f *fakeFactory) latest() *fakeRemote {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.remotes) == 0 {
		return nil
	}
	return f.remotes[len(f.remotes)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.remotes)
}

type fakeLoader struct {
	mu      sync.Mutex
	factory core.RemoteFactory
	err     error
	calls   int
}

func (l *fakeLoader) Load(ctx context.Context) (core.RemoteFactory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.factory, nil
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type fakeTokens struct {
	mu    sync.Mutex
	token *core.PlaybackToken
	err   error
	calls []string
}

func (f *fakeTokens) Fetch(ctx context.Context, identity string) (*core.PlaybackToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, identity)
	if f.err != nil {
		return nil, f.err
	}
	token := *f.token
	return &token, nil
}

func (f *fakeTokens) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type playCall struct {
	token    string
	deviceID string
	trackID  string
}

type fakeCommander struct {
	mu       sync.Mutex
	plays    []playCall
	pauses   []string
	playErr  error
	pauseErr error
	onPlay   func(trackID string)
}

func (f *fakeCommander) Play(ctx context.Context, accessToken, deviceID, trackID string) error {
	f.mu.Lock()
	f.plays = append(f.plays, playCall{token: accessToken, deviceID: deviceID, trackID: trackID})
	err := f.playErr
	onPlay := f.onPlay
	f.mu.Unlock()

	if err == nil && onPlay != nil {
		onPlay(trackID)
	}
	return err
}

func (f *fakeCommander) Pause(ctx context.Context, accessToken, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses = append(f.pauses, deviceID)
	return f.pauseErr
}

func (f *fakeCommander) playCalls() []playCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playCall(nil), f.plays...)
}

type fakeProbe struct {
	err error
}

func (p fakeProbe) Check() error { return p.err }

type fakeObserver struct {
	mu     sync.Mutex
	tracks []string
}

func (o *fakeObserver) TrackStarted(identity string, track core.Track) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tracks = append(o.tracks, identity+":"+track.ID)
}

func (o *fakeObserver) seen() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.tracks...)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	ctrl     *Controller
	factory  *fakeFactory
	loader   *fakeLoader
	tokens   *fakeTokens
	commands *fakeCommander
	observer *fakeObserver
}

func premiumToken() *core.PlaybackToken {
	premium := true
	return &core.PlaybackToken{Eligible: true, Premium: &premium, Product: "premium", AccessToken: "tok"}
}

func testConfig() core.PlaybackConfig {
	cfg := core.DefaultPlaybackConfig()
	cfg.PollInterval = time.Hour
	cfg.MuteSettleDelay = 5 * time.Millisecond
	cfg.PauseConfirmTimeout = 200 * time.Millisecond
	cfg.PauseConfirmInterval = 5 * time.Millisecond
	cfg.InterpolationInterval = 10 * time.Millisecond
	return cfg
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	h := &harness{
		factory:  &fakeFactory{},
		tokens:   &fakeTokens{token: premiumToken()},
		commands: &fakeCommander{},
		observer: &fakeObserver{},
	}
	h.loader = &fakeLoader{factory: h.factory}

	opts := Options{
		Config:   testConfig(),
		Loader:   h.loader,
		Tokens:   h.tokens,
		Commands: h.commands,
		Probe:    fakeProbe{},
		Observer: h.observer,
		Logger:   zap.NewNop(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.ctrl = New(opts)
	t.Cleanup(h.ctrl.Close)
	return h
}

// connect enables the controller for identity and waits for the remote to be connected.
func (h *harness) connect(t *testing.T, identity string) *fakeRemote {
	t.Helper()
	before := h.factory.count()
	h.ctrl.Configure(true, identity)
	waitFor(t, "remote connected", func() bool {
		r := h.factory.latest()
		if h.factory.count() == before || r == nil {
			return false
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.connected
	})
	return h.factory.latest()
}

// ready connects and signals the device as ready.
func (h *harness) ready(t *testing.T, identity, deviceID string) *fakeRemote {
	t.Helper()
	r := h.connect(t, identity)
	r.emit(core.EventReady, core.EventPayload{DeviceID: deviceID})
	if status := h.ctrl.Status(); status != core.StatusReady {
		t.Fatalf("Expected status ready, got %s", status)
	}
	return r
}

func (h *harness) seekIntent() *seekIntent {
	h.ctrl.mu.Lock()
	defer h.ctrl.mu.Unlock()
	if h.ctrl.sess == nil || h.ctrl.sess.seek == nil {
		return nil
	}
	si := *h.ctrl.sess.seek
	return &si
}

func (h *harness) switchIntent() *switchIntent {
	h.ctrl.mu.Lock()
	defer h.ctrl.mu.Unlock()
	if h.ctrl.sess == nil || h.ctrl.sess.sw == nil {
		return nil
	}
	sw := *h.ctrl.sess.sw
	return &sw
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func trackState(id string, positionMs, durationMs int, paused bool) *core.RemoteState {
	return &core.RemoteState{
		Track:      core.Track{ID: id, Name: "Song " + id, Artist: "Artist " + id},
		PositionMs: positionMs,
		DurationMs: durationMs,
		Paused:     paused,
	}
}

var errBoom = errors.New("boom")
