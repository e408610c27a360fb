package playback

import (
	"context"
	"errors"
	"testing"

	"playdeck/internal/core"
)

func TestTransport_WithoutSessionIsNoop(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.ctrl.Pause(context.Background()); err != nil {
		t.Errorf("Pause() error = %v", err)
	}
	if err := h.ctrl.Resume(context.Background()); err != nil {
		t.Errorf("Resume() error = %v", err)
	}
}

func TestTransport_PauseResume(t *testing.T) {
	h := newHarness(t, nil)
	remote := h.ready(t, "u1", "d1")
	remote.setState(trackState("A", 1000, 200000, false))

	if err := h.ctrl.Pause(context.Background()); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if !remote.isPaused() {
		t.Error("Expected remote to be paused")
	}
	if err := h.ctrl.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if remote.isPaused() {
		t.Error("Expected remote to be playing")
	}
}

func TestTransport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		{"no active device", core.NewError(core.ErrNoActiveDevice, "", nil), core.ErrNoActiveDevice},
		{"other failure", errBoom, core.ErrPlaybackCommandFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			remote := h.ready(t, "u1", "d1")
			remote.pauseErr = tt.err
			remote.resumeErr = tt.err

			if err := h.ctrl.Pause(context.Background()); !errors.Is(err, tt.wantKind) {
				t.Errorf("Pause() expected %v, got %v", tt.wantKind, err)
			}
			if err := h.ctrl.Resume(context.Background()); !errors.Is(err, tt.wantKind) {
				t.Errorf("Resume() expected %v, got %v", tt.wantKind, err)
			}
		})
	}
}

func TestDescribe_NoActiveDeviceGuidance(t *testing.T) {
	h := newHarness(t, nil)

	msg := Describe(h.ctrl.localizer, core.NewError(core.ErrNoActiveDevice, "Player command failed", nil))

	want := "Spotify needs an active device. Open Spotify on any device and try again."
	if msg != want {
		t.Errorf("Expected %q, got %q", want, msg)
	}
}

func TestSetVolume(t *testing.T) {
	t.Run("clamps and applies", func(t *testing.T) {
		h := newHarness(t, nil)
		remote := h.ready(t, "u1", "d1")

		if err := h.ctrl.SetVolume(context.Background(), 1.7); err != nil {
			t.Fatalf("SetVolume() error = %v", err)
		}
		if v := remote.currentVolume(); v != 1 {
			t.Errorf("Expected remote volume 1, got %v", v)
		}
		if err := h.ctrl.SetVolume(context.Background(), -0.2); err != nil {
			t.Fatalf("SetVolume() error = %v", err)
		}
		if v := h.ctrl.Snapshot().Volume; v != 0 {
			t.Errorf("Expected volume 0, got %v", v)
		}
	})

	t.Run("without session becomes the initial volume", func(t *testing.T) {
		h := newHarness(t, nil)

		if err := h.ctrl.SetVolume(context.Background(), 0.3); err != nil {
			t.Fatalf("SetVolume() error = %v", err)
		}
		remote := h.connect(t, "u1")

		if remote.opts.Volume != 0.3 {
			t.Errorf("Expected initial volume 0.3, got %v", remote.opts.Volume)
		}
	})

	t.Run("during a switch replaces the restore level", func(t *testing.T) {
		h := newHarness(t, nil)
		remote := h.ready(t, "u1", "d1")
		h.ctrl.mu.Lock()
		h.ctrl.sess.sw = &switchIntent{trackID: "B", previousVolume: 0.6}
		h.ctrl.mu.Unlock()

		if err := h.ctrl.SetVolume(context.Background(), 0.4); err != nil {
			t.Fatalf("SetVolume() error = %v", err)
		}
		if sw := h.switchIntent(); sw == nil || sw.previousVolume != 0.4 {
			t.Errorf("Expected restore level 0.4, got %+v", sw)
		}
		for _, call := range remote.callLog() {
			if call == "volume" {
				t.Error("Expected the muted device to stay muted")
			}
		}
	})
}
