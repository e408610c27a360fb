package playback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"playdeck/internal/core"
)

// Play starts trackID from the beginning on the session's device. When a
// different track is current, the outgoing track is muted and paused first
// so the two never sound at the same time; the volume comes back once the
// reconciler sees the new track.
func (c *Controller) Play(ctx context.Context, trackID string) (err error) {
	defer func() { c.metrics.Command("play", err) }()

	c.mu.Lock()
	if c.identity == "" {
		c.mu.Unlock()
		return core.NewError(core.ErrMissingIdentity, "", nil)
	}
	s := c.sess
	if c.statusLocked() != core.StatusReady || s == nil || s.remote == nil || s.deviceID == "" {
		c.mu.Unlock()
		return core.NewError(core.ErrSessionNotReady, "", nil)
	}
	remote := s.remote
	deviceID := s.deviceID
	current := s.currentTrackID
	lastVolume := c.volume
	switching := current != "" && current != trackID
	if !switching && s.sw != nil && s.sw.trackID != trackID {
		// switching back before the device reported the earlier target
		s.clearSeekLocked()
		s.sw = &switchIntent{trackID: trackID, previousVolume: s.sw.previousVolume}
	}
	c.mu.Unlock()

	log := c.logger.With(zap.String("trackID", trackID), zap.String("deviceID", deviceID))

	if switching {
		log.Debug("Switching tracks", zap.String("from", current))
		c.silence(ctx, s, remote, deviceID, trackID, lastVolume, log)
		if !c.stillCurrent(s) {
			log.Debug("Session ended during switch, not starting playback")
			return core.NewError(core.ErrSessionNotReady, "", nil)
		}
	}

	token, err := c.requestToken(ctx, s.identity, s.gen)
	if err != nil {
		c.abortSwitch(s, remote)
		return err
	}
	if !c.stillCurrent(s) {
		return core.NewError(core.ErrSessionNotReady, "", nil)
	}

	if err := c.commands.Play(ctx, token, deviceID, trackID); err != nil {
		c.abortSwitch(s, remote)
		log.Warn("Play command failed", zap.Error(err))
		return commandError(err)
	}

	log.Info("Playback started")
	return nil
}

// silence mutes and pauses the outgoing track. Every step is best effort.
func (c *Controller) silence(ctx context.Context, s *session, remote core.Remote, deviceID, trackID string,
	lastVolume float64, log *zap.Logger) {
	previous, err := remote.Volume(ctx)
	if err != nil {
		log.Debug("Reading volume failed, using last known level", zap.Error(err))
		previous = lastVolume
	}

	c.mu.Lock()
	if !c.currentLocked(s.gen) {
		c.mu.Unlock()
		return
	}
	if s.sw != nil {
		// an earlier switch already muted the device
		previous = s.sw.previousVolume
	}
	s.clearSeekLocked()
	s.sw = &switchIntent{trackID: trackID, previousVolume: previous}
	c.mu.Unlock()

	if err := remote.SetVolume(ctx, 0); err != nil {
		log.Debug("Muting before switch failed", zap.Error(err))
	}
	if err := sleepCtx(ctx, c.cfg.MuteSettleDelay); err != nil {
		return
	}

	if err := remote.Pause(ctx); err != nil {
		log.Debug("Remote pause failed, falling back to direct command", zap.Error(err))
		if token, tokenErr := c.requestToken(ctx, s.identity, s.gen); tokenErr == nil {
			if err := c.commands.Pause(ctx, token, deviceID); err != nil {
				log.Debug("Direct pause failed", zap.Error(err))
			}
		}
	}

	c.awaitPaused(ctx, remote, log)
}

// awaitPaused polls until the remote reports paused or no context, bounded by the confirm timeout.
func (c *Controller) awaitPaused(ctx context.Context, remote core.Remote, log *zap.Logger) {
	deadline := time.Now().Add(c.cfg.PauseConfirmTimeout)
	for {
		state, err := remote.GetState(ctx)
		if err == nil && (state == nil || state.Paused) {
			return
		}
		if time.Now().Add(c.cfg.PauseConfirmInterval).After(deadline) {
			log.Debug("Outgoing track did not confirm pause in time")
			return
		}
		if sleepCtx(ctx, c.cfg.PauseConfirmInterval) != nil {
			return
		}
	}
}

func (c *Controller) stillCurrent(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(s.gen)
}

// abortSwitch drops an outstanding switch intent after a failed play and unmutes the device.
func (c *Controller) abortSwitch(s *session, remote core.Remote) {
	c.mu.Lock()
	if !c.currentLocked(s.gen) || s.sw == nil {
		c.mu.Unlock()
		return
	}
	level := s.sw.previousVolume
	s.sw = nil
	c.volume = level
	c.mu.Unlock()

	c.restoreVolume(s, remote, level)
	c.publish()
}
