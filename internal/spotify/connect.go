package spotify

import (
	"context"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"

	"playdeck/internal/core"
)

// ConnectPlayer is a remote player backed by a Spotify Connect device named
// after the session. It watches the Web API and turns what it sees into
// player events.
type ConnectPlayer struct {
	opts     core.RemoteOptions
	api      api
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	handlers  map[core.Event][]core.EventHandler
	deviceID  string
	ready     bool
	lastState *core.RemoteState
	cancel    context.CancelFunc
	done      chan struct{}
}

func newConnectPlayer(opts core.RemoteOptions, a api, interval time.Duration, logger *zap.Logger) *ConnectPlayer {
	if interval <= 0 {
		interval = time.Second
	}
	return &ConnectPlayer{
		opts:     opts,
		api:      a,
		interval: interval,
		logger:   logger.With(zap.String("player", opts.Name)),
		handlers: make(map[core.Event][]core.EventHandler),
	}
}

func (p *ConnectPlayer) On(event core.Event, handler core.EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[event] = append(p.handlers[event], handler)
}

func (p *ConnectPlayer) emit(event core.Event, payload core.EventPayload) {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	handlers := append([]core.EventHandler(nil), p.handlers[event]...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

// Connect checks that the account can reach the player API and starts
// watching for the device. The ready event follows once the device is listed.
func (p *ConnectPlayer) Connect(ctx context.Context) error {
	client, err := p.client(ctx)
	if err != nil {
		return err
	}
	if _, err := client.PlayerDevices(ctx); err != nil {
		return classify(err)
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil
	}
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.watch(watchCtx)
	return nil
}

// Disconnect stops watching. No events are emitted afterwards.
func (p *ConnectPlayer) Disconnect() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.ready = false
	p.deviceID = ""
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *ConnectPlayer) watch(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// refresh runs one watch cycle: device presence, then playback state.
func (p *ConnectPlayer) refresh(ctx context.Context) {
	client, err := p.client(ctx)
	if err != nil {
		// the token callback already reported the failure
		return
	}

	devices, err := client.PlayerDevices(ctx)
	if err != nil {
		p.report(ctx, err)
		return
	}

	var found *spotify.PlayerDevice
	for i := range devices {
		if strings.EqualFold(devices[i].Name, p.opts.Name) {
			found = &devices[i]
			break
		}
	}

	p.mu.Lock()
	wasReady, previousID := p.ready, p.deviceID
	if found != nil {
		p.ready, p.deviceID = true, found.ID.String()
	} else {
		p.ready, p.deviceID = false, ""
	}
	p.mu.Unlock()

	switch {
	case found != nil && !wasReady:
		p.logger.Info("Spotify Connect device available", zap.String("deviceID", found.ID.String()))
		p.applyInitialVolume(ctx, client, found.ID)
		p.emit(core.EventReady, core.EventPayload{DeviceID: found.ID.String()})
	case found == nil && wasReady:
		p.logger.Warn("Spotify Connect device disappeared", zap.String("deviceID", previousID))
		p.emit(core.EventNotReady, core.EventPayload{DeviceID: previousID})
		return
	case found == nil:
		return
	}

	state, err := client.PlayerState(ctx)
	if err != nil {
		p.report(ctx, err)
		return
	}
	remote := toRemoteState(state, found.ID.String())

	p.mu.Lock()
	changed := !reflect.DeepEqual(remote, p.lastState)
	p.lastState = remote
	p.mu.Unlock()

	if changed {
		p.emit(core.EventStateChanged, core.EventPayload{State: remote})
	}
}

func (p *ConnectPlayer) applyInitialVolume(ctx context.Context, client *spotify.Client, device spotify.ID) {
	if p.opts.Volume <= 0 {
		return
	}
	if err := client.VolumeOpt(ctx, toPercent(p.opts.Volume), &spotify.PlayOptions{DeviceID: &device}); err != nil {
		p.logger.Debug("Setting initial volume failed", zap.Error(err))
	}
}

// report turns a failed background call into an error event when it is not transient.
func (p *ConnectPlayer) report(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	if event, ok := eventFor(err); ok {
		_, message := apiStatus(err)
		p.emit(event, core.EventPayload{Message: message})
		return
	}
	p.logger.Debug("Watch cycle failed", zap.Error(err))
}

func (p *ConnectPlayer) Pause(ctx context.Context) error {
	return p.command(ctx, func(client *spotify.Client, opt *spotify.PlayOptions) error {
		return client.PauseOpt(ctx, opt)
	})
}

func (p *ConnectPlayer) Resume(ctx context.Context) error {
	return p.command(ctx, func(client *spotify.Client, opt *spotify.PlayOptions) error {
		return client.PlayOpt(ctx, opt)
	})
}

func (p *ConnectPlayer) Seek(ctx context.Context, positionMs int) error {
	return p.command(ctx, func(client *spotify.Client, opt *spotify.PlayOptions) error {
		return client.SeekOpt(ctx, positionMs, opt)
	})
}

func (p *ConnectPlayer) SetVolume(ctx context.Context, level float64) error {
	return p.command(ctx, func(client *spotify.Client, opt *spotify.PlayOptions) error {
		return client.VolumeOpt(ctx, toPercent(level), opt)
	})
}

func (p *ConnectPlayer) GetState(ctx context.Context) (*core.RemoteState, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	state, err := client.PlayerState(ctx)
	if err != nil {
		return nil, classify(err)
	}

	p.mu.Lock()
	deviceID := p.deviceID
	p.mu.Unlock()
	return toRemoteState(state, deviceID), nil
}

func (p *ConnectPlayer) Volume(ctx context.Context) (float64, error) {
	client, err := p.client(ctx)
	if err != nil {
		return 0, err
	}
	devices, err := client.PlayerDevices(ctx)
	if err != nil {
		return 0, classify(err)
	}

	p.mu.Lock()
	deviceID := p.deviceID
	p.mu.Unlock()
	for _, device := range devices {
		if device.ID.String() == deviceID {
			return float64(device.Volume) / 100, nil
		}
	}
	return 0, core.NewError(core.ErrNoActiveDevice, "", nil)
}

// command runs fn against the session's device with a fresh token.
func (p *ConnectPlayer) command(ctx context.Context, fn func(*spotify.Client, *spotify.PlayOptions) error) error {
	p.mu.Lock()
	deviceID := p.deviceID
	p.mu.Unlock()
	if deviceID == "" {
		return core.NewError(core.ErrSessionNotReady, "", nil)
	}

	client, err := p.client(ctx)
	if err != nil {
		return err
	}
	device := spotify.ID(deviceID)
	return classify(fn(client, &spotify.PlayOptions{DeviceID: &device}))
}

// client asks the session for a fresh token; tokens are never reused.
func (p *ConnectPlayer) client(ctx context.Context) (*spotify.Client, error) {
	token, err := p.opts.Token(ctx)
	if err != nil {
		return nil, err
	}
	return p.api.client(ctx, token), nil
}

// toRemoteState converts the Web API player state. Playback on another
// device, or none at all, is reported as no context.
func toRemoteState(state *spotify.PlayerState, deviceID string) *core.RemoteState {
	if state == nil || state.Item == nil {
		return nil
	}
	if deviceID != "" && state.Device.ID.String() != "" && state.Device.ID.String() != deviceID {
		return nil
	}

	item := state.Item
	artists := make([]string, 0, len(item.Artists))
	for _, artist := range item.Artists {
		artists = append(artists, artist.Name)
	}
	var artwork string
	if len(item.Album.Images) > 0 {
		artwork = item.Album.Images[0].URL
	}

	return &core.RemoteState{
		Track: core.Track{
			ID:         item.ID.String(),
			Name:       item.Name,
			Artist:     strings.Join(artists, ", "),
			ArtworkURL: artwork,
		},
		PositionMs: int(state.Progress),
		DurationMs: int(item.Duration),
		Paused:     !state.Playing,
	}
}

func toPercent(level float64) int {
	return int(math.Round(math.Max(0, math.Min(1, level)) * 100))
}
