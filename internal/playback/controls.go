package playback

import (
	"context"

	"go.uber.org/zap"

	"playdeck/internal/core"
)

// Pause pauses the remote player. Without a session it does nothing.
func (c *Controller) Pause(ctx context.Context) error {
	return c.transport(ctx, "pause", func(remote core.Remote) error {
		return remote.Pause(ctx)
	})
}

// Resume resumes the remote player. Without a session it does nothing.
func (c *Controller) Resume(ctx context.Context) error {
	return c.transport(ctx, "resume", func(remote core.Remote) error {
		return remote.Resume(ctx)
	})
}

func (c *Controller) transport(ctx context.Context, name string, fn func(core.Remote) error) error {
	c.mu.Lock()
	s := c.sess
	if s == nil || s.remote == nil {
		c.mu.Unlock()
		return nil
	}
	remote := s.remote
	c.mu.Unlock()

	err := fn(remote)
	c.metrics.Command(name, err)
	if err != nil {
		c.logger.Warn("Transport command failed", zap.String("command", name), zap.Error(err))
		return commandError(err)
	}
	return nil
}

// SetVolume sets the playback volume, clamped to [0, 1]. Without a session
// the level becomes the initial volume of the next one. During a track switch
// it replaces the level restored once the new track sounds.
func (c *Controller) SetVolume(ctx context.Context, level float64) (err error) {
	level = clampVolume(level)

	c.mu.Lock()
	c.volume = level
	s := c.sess
	if s == nil || s.remote == nil {
		c.mu.Unlock()
		c.publish()
		return nil
	}
	if s.sw != nil {
		s.sw.previousVolume = level
		c.mu.Unlock()
		c.publish()
		return nil
	}
	remote := s.remote
	c.mu.Unlock()
	c.publish()

	defer func() { c.metrics.Command("volume", err) }()
	if err := remote.SetVolume(ctx, level); err != nil {
		return commandError(err)
	}
	return nil
}

// commandError classifies a failed remote command. Errors that already carry
// a kind, such as token failures or a missing device, keep it.
func commandError(err error) error {
	if core.KindOf(err) != nil || core.IsTransient(err) {
		return err
	}
	return core.NewError(core.ErrPlaybackCommandFailed, "", err)
}
