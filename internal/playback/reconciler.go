package playback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"playdeck/internal/core"
)

// Reconcile decisions, reported to the metrics recorder.
const (
	decisionCleared   = "cleared"
	decisionIgnored   = "ignored"
	decisionSwitched  = "switched"
	decisionStale     = "stale"
	decisionConverged = "converged"
	decisionExpired   = "expired"
	decisionChanged   = "track_changed"
	decisionAdopted   = "adopted"
)

type reconcileResult struct {
	decision string
	started  *core.Track
	restore  *float64
}

// reconcile merges one raw remote state, pushed or polled, into the view.
// Push events and polls race; intents recorded by local commands decide
// which reports are trusted.
func (c *Controller) reconcile(gen uint64, raw *core.RemoteState) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	s := c.sess
	res := c.reconcileLocked(s, raw)
	identity := s.identity
	remote := s.remote
	c.mu.Unlock()

	c.metrics.Reconcile(res.decision)
	if res.started != nil && c.observer != nil {
		c.observer.TrackStarted(identity, *res.started)
	}
	if res.restore != nil && remote != nil {
		go c.restoreVolume(s, remote, *res.restore)
	}
	if res.decision != decisionIgnored {
		c.publish()
	}
}

func (c *Controller) reconcileLocked(s *session, raw *core.RemoteState) reconcileResult {
	if raw == nil {
		c.view = view{}
		s.currentTrackID = ""
		s.clearSeekLocked()
		return reconcileResult{decision: decisionCleared}
	}

	var res reconcileResult
	if raw.Track.ID != "" && raw.Track.ID != s.currentTrackID {
		track := raw.Track
		res.started = &track
	}

	if sw := s.sw; sw != nil {
		if raw.Track.ID != sw.trackID {
			return reconcileResult{decision: decisionIgnored}
		}
		s.sw = nil
		s.clearSeekLocked()
		s.currentTrackID = raw.Track.ID
		c.adoptLocked(raw, 0)
		c.volume = sw.previousVolume
		level := sw.previousVolume
		res.decision = decisionSwitched
		res.restore = &level
		return res
	}

	if s.currentTrackID != "" && raw.Track.ID != s.currentTrackID {
		s.clearSeekLocked()
		s.currentTrackID = raw.Track.ID
		c.adoptLocked(raw, 0)
		res.decision = decisionChanged
		return res
	}
	s.currentTrackID = raw.Track.ID

	if si := s.seek; si != nil {
		now := c.now()
		if now.Sub(si.issuedAt) > c.cfg.SeekWindow {
			s.clearSeekLocked()
			c.adoptLocked(raw, raw.PositionMs)
			res.decision = decisionExpired
			return res
		}

		band := si.targetMs - int(c.cfg.SeekTolerance/time.Millisecond)
		if raw.PositionMs < band {
			c.adoptLocked(raw, c.extrapolate(si, raw.Paused, raw.DurationMs, now))
			c.startInterpolationLocked(s)
			res.decision = decisionStale
			return res
		}

		s.clearSeekLocked()
		c.adoptLocked(raw, raw.PositionMs)
		res.decision = decisionConverged
		return res
	}

	c.adoptLocked(raw, raw.PositionMs)
	res.decision = decisionAdopted
	return res
}

// adoptLocked rebuilds the view from raw with the given display position.
func (c *Controller) adoptLocked(raw *core.RemoteState, positionMs int) {
	track := raw.Track
	c.view = view{
		track:      &track,
		positionMs: clampPosition(positionMs, raw.DurationMs),
		durationMs: raw.DurationMs,
		paused:     raw.Paused,
	}
}

// extrapolate advances the seek base by the wall-clock time since the seek
// unless playback is paused.
func (c *Controller) extrapolate(si *seekIntent, paused bool, durationMs int, now time.Time) int {
	position := si.baseMs
	if !paused {
		position += int(now.Sub(si.issuedAt) / time.Millisecond)
	}
	return clampPosition(position, durationMs)
}

func (c *Controller) startInterpolationLocked(s *session) {
	if s.stopInterp != nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.stopInterp = cancel
	go c.interpolate(ctx, s.gen, s.seek)
}

// interpolate keeps the displayed position moving while stale reports are
// suppressed. It stops when the intent is resolved or its window elapses.
func (c *Controller) interpolate(ctx context.Context, gen uint64, si *seekIntent) {
	ticker := time.NewTicker(c.cfg.InterpolationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if !c.currentLocked(gen) || c.sess.seek != si {
			c.mu.Unlock()
			return
		}
		now := c.now()
		if now.Sub(si.issuedAt) > c.cfg.SeekWindow {
			c.sess.clearSeekLocked()
			c.mu.Unlock()
			c.logger.Debug("Seek window elapsed before the device caught up",
				zap.Int("targetMs", si.targetMs))
			return
		}
		c.view.positionMs = c.extrapolate(si, c.view.paused, c.view.durationMs, now)
		c.mu.Unlock()
		c.publish()
	}
}

// clearSeekLocked drops the seek intent and stops its interpolation.
func (s *session) clearSeekLocked() {
	s.seek = nil
	if s.stopInterp != nil {
		s.stopInterp()
		s.stopInterp = nil
	}
}

// restoreVolume sets the remote volume back after a switch, bounded by the command timeout.
func (c *Controller) restoreVolume(s *session, remote core.Remote, level float64) {
	ctx, cancel := context.WithTimeout(s.ctx, c.cfg.CommandTimeout)
	defer cancel()

	if err := remote.SetVolume(ctx, level); err != nil {
		c.logger.Debug("Volume restore failed", zap.Float64("level", level), zap.Error(err))
	}
}
