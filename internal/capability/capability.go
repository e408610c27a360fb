// Package capability checks whether this host can play protected media.
package capability

import (
	"errors"
	"fmt"
	"os"

	"playdeck/internal/core"
)

// ErrNoCDM is returned when no Widevine content decryption module is installed.
var ErrNoCDM = errors.New("encrypted media (Widevine) is not available on this host")

type assumed struct{}

func (assumed) Check() error { return nil }

// Assume returns a probe that always reports support. Used when playback
// happens on a device other than this host.
func Assume() core.ProtectedMediaProbe {
	return assumed{}
}

// WidevineProbe reports support when the Widevine CDM library exists at Path.
type WidevineProbe struct {
	Path string
}

func (p WidevineProbe) Check() error {
	info, err := os.Stat(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s not found", ErrNoCDM, p.Path)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCDM, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNoCDM, p.Path)
	}
	return nil
}

// ForPath returns a WidevineProbe for path, or Assume when path is empty.
func ForPath(path string) core.ProtectedMediaProbe {
	if path == "" {
		return Assume()
	}
	return WidevineProbe{Path: path}
}
