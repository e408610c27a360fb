package playback

import (
	"context"

	"go.uber.org/zap"
)

// Seek moves playback to positionMs, clamped into the current track. The
// displayed position jumps immediately; stale reports that still show the
// old position are suppressed until the device catches up or the seek
// window elapses. Without a session Seek does nothing.
func (c *Controller) Seek(ctx context.Context, positionMs int) (err error) {
	c.mu.Lock()
	s := c.sess
	if s == nil || s.remote == nil {
		c.mu.Unlock()
		return nil
	}
	defer func() { c.metrics.Command("seek", err) }()

	target := clampPosition(positionMs, c.view.durationMs)
	intent := &seekIntent{targetMs: target, issuedAt: c.now(), baseMs: target}
	s.clearSeekLocked()
	s.seek = intent
	c.view.positionMs = target
	remote := s.remote
	gen := s.gen
	c.mu.Unlock()
	c.publish()

	if err := remote.Seek(ctx, target); err != nil {
		c.mu.Lock()
		if c.currentLocked(gen) && s.seek == intent {
			s.clearSeekLocked()
		}
		c.mu.Unlock()
		c.logger.Warn("Seek failed", zap.Int("targetMs", target), zap.Error(err))
		return commandError(err)
	}

	state, err := remote.GetState(ctx)
	if err != nil {
		c.logger.Debug("State read after seek failed", zap.Error(err))
		return nil
	}
	c.reconcile(gen, state)
	return nil
}
