package playback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"playdeck/internal/core"
)

// Configure applies the enablement flag and the user identity. Turning
// playback off or changing the identity tears the current session down; an
// enabled controller with an identity starts a new session in the background.
// Calling it again with the same pair does nothing.
func (c *Controller) Configure(enabled bool, identity string) {
	c.mu.Lock()
	if c.closed || (enabled == c.enabled && identity == c.identity) {
		c.mu.Unlock()
		return
	}

	c.enabled = enabled
	c.identity = identity
	c.lastErr = nil
	old := c.detachLocked()

	var started *session
	switch {
	case !enabled:
		if identity == "" {
			c.product = ""
		}
	case identity == "":
		c.product = ""
	default:
		started = c.attachLocked()
	}
	c.mu.Unlock()

	c.release(old)
	if started != nil {
		c.logger.Info("Starting playback session",
			zap.String("identity", identity),
			zap.Uint64("generation", started.gen))
		go c.bootstrap(started)
	}
	c.publish()
}

// Disconnect turns playback off and tears the session down. The identity is kept.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.enabled = false
	c.lastErr = nil
	if c.identity == "" {
		c.product = ""
	}
	old := c.detachLocked()
	c.mu.Unlock()

	c.release(old)
	c.publish()
}

// Close disconnects and stops accepting configuration.
func (c *Controller) Close() {
	c.Disconnect()

	c.mu.Lock()
	c.closed = true
	c.listeners = nil
	c.mu.Unlock()
}

// attachLocked creates a fresh session record for the current identity.
func (c *Controller) attachLocked() *session {
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		gen:      c.gen,
		identity: c.identity,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.sess = s
	return s
}

// detachLocked forgets the current session, stops its timers and bumps the
// generation so that late callbacks of the old session are ignored. The
// returned session still owns its remote; pass it to release once unlocked.
func (c *Controller) detachLocked() *session {
	s := c.sess
	c.sess = nil
	c.gen++
	c.view = view{}
	if s != nil {
		s.clearSeekLocked()
		s.sw = nil
		s.cancel()
	}
	return s
}

func (c *Controller) release(s *session) {
	if s == nil || s.remote == nil {
		return
	}
	s.remote.Disconnect()
	c.logger.Debug("Released playback session", zap.Uint64("generation", s.gen))
}

func (c *Controller) bootstrap(s *session) {
	if c.probe != nil {
		if err := c.probe.Check(); err != nil {
			c.fail(s.gen, core.NewError(core.ErrUnsupportedPlatform, "", err), true)
			return
		}
	}

	factory, err := c.loader.Load(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			c.fail(s.gen, core.NewError(core.ErrSDKLoadFailed, "", err), true)
		}
		return
	}

	c.mu.Lock()
	if !c.currentLocked(s.gen) {
		c.mu.Unlock()
		return
	}
	volume := c.volume
	c.mu.Unlock()

	remote := factory.NewRemote(core.RemoteOptions{
		Name:   c.cfg.PlayerName,
		Volume: volume,
		Token:  c.tokenCallback(s),
	})
	c.register(s.gen, remote)

	c.mu.Lock()
	if !c.currentLocked(s.gen) {
		c.mu.Unlock()
		remote.Disconnect()
		return
	}
	s.remote = remote
	c.mu.Unlock()

	if err := remote.Connect(s.ctx); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		if core.KindOf(err) == nil {
			err = core.NewError(core.ErrConnect, "", err)
		}
		c.fail(s.gen, err, true)
		return
	}

	c.logger.Debug("Remote player connected", zap.Uint64("generation", s.gen))
	go c.poll(s)
}

// register wires the remote's events to the controller. Every handler checks
// that its generation is still current before touching state.
func (c *Controller) register(gen uint64, remote core.Remote) {
	remote.On(core.EventReady, func(p core.EventPayload) {
		c.onReady(gen, p.DeviceID)
	})
	remote.On(core.EventNotReady, func(p core.EventPayload) {
		c.onNotReady(gen, p.DeviceID)
	})
	remote.On(core.EventStateChanged, func(p core.EventPayload) {
		c.reconcile(gen, p.State)
	})
	for _, event := range core.ErrorEvents {
		event := event
		remote.On(event, func(p core.EventPayload) {
			c.onRemoteError(gen, event, p.Message)
		})
	}
}

func (c *Controller) onReady(gen uint64, deviceID string) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.sess.deviceID = deviceID
	c.sess.ready = true
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("Playback device ready", zap.String("deviceID", deviceID))
	c.publish()
}

func (c *Controller) onNotReady(gen uint64, deviceID string) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.sess.ready = false
	c.mu.Unlock()

	c.logger.Warn("Playback device went offline", zap.String("deviceID", deviceID))
	c.publish()
}

func (c *Controller) onRemoteError(gen uint64, event core.Event, message string) {
	kind := core.ErrPlaybackCommandFailed
	switch event {
	case core.EventInitializationError:
		kind = core.ErrSDKLoadFailed
	case core.EventAuthenticationError:
		kind = core.ErrConnect
	case core.EventAccountError:
		kind = core.ErrPremiumRequired
	}
	c.fail(gen, core.NewError(kind, message, nil), false)
}

// fail records err as the session's failure. When drop is set the session is
// also torn down, leaving the controller in the error state until it is reconfigured.
func (c *Controller) fail(gen uint64, err error, drop bool) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	var old *session
	if drop {
		old = c.detachLocked()
	}
	c.mu.Unlock()

	c.release(old)
	c.logger.Warn("Playback session failed", zap.Uint64("generation", gen), zap.Error(err))
	c.publish()
}

// tokenCallback is handed to the remote player, which decides when it needs a fresh token.
func (c *Controller) tokenCallback(s *session) core.TokenFunc {
	return func(ctx context.Context) (string, error) {
		token, err := c.requestToken(ctx, s.identity, s.gen)
		if err != nil && !core.IsTransient(err) {
			c.fail(s.gen, err, false)
		}
		return token, err
	}
}

// requestToken fetches a fresh token for identity and records the reported
// subscription product. Tokens are never cached.
func (c *Controller) requestToken(ctx context.Context, identity string, gen uint64) (string, error) {
	if identity == "" {
		return "", core.NewError(core.ErrMissingIdentity, "", nil)
	}

	token, err := c.tokens.Fetch(ctx, identity)
	c.metrics.TokenRequest(err)
	if err != nil {
		c.setProduct(gen, "")
		if core.KindOf(err) == nil && !core.IsTransient(err) {
			err = core.NewError(core.ErrTokenRequestFailed, "", err)
		}
		return "", err
	}

	c.setProduct(gen, token.Product)
	return token.Authorize()
}

func (c *Controller) setProduct(gen uint64, product string) {
	c.mu.Lock()
	if !c.currentLocked(gen) || c.product == product {
		c.mu.Unlock()
		return
	}
	c.product = product
	c.mu.Unlock()
	c.publish()
}

// poll reads the remote state at a fixed interval and feeds it to the
// reconciler. Read errors are transient and only logged.
func (c *Controller) poll(s *session) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if !c.currentLocked(s.gen) {
			c.mu.Unlock()
			return
		}
		remote := s.remote
		c.mu.Unlock()

		state, err := remote.GetState(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				c.logger.Debug("State poll failed", zap.Error(err))
			}
			continue
		}
		c.reconcile(s.gen, state)
	}
}
