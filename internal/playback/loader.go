package playback

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"playdeck/internal/core"
)

// Loader makes the remote player platform available and returns a factory for players.
type Loader interface {
	Load(ctx context.Context) (core.RemoteFactory, error)
}

// LoadFunc performs one platform load.
type LoadFunc func(ctx context.Context) (core.RemoteFactory, error)

// SharedLoader runs a LoadFunc at most once per process lifetime. Concurrent
// callers share one in-flight load; a successful result is memoized and a
// failed one is forgotten so the next caller retries.
type SharedLoader struct {
	load  LoadFunc
	group singleflight.Group

	mu      sync.Mutex
	factory core.RemoteFactory
}

// NewSharedLoader wraps load. Share the returned value between every
// controller of the process.
func NewSharedLoader(load LoadFunc) *SharedLoader {
	return &SharedLoader{load: load}
}

// Load returns the memoized factory or joins the in-flight load. A caller
// whose ctx ends stops waiting but does not cancel the shared load.
func (l *SharedLoader) Load(ctx context.Context) (core.RemoteFactory, error) {
	if factory := l.loaded(); factory != nil {
		return factory, nil
	}

	ch := l.group.DoChan("load", func() (interface{}, error) {
		if factory := l.loaded(); factory != nil {
			return factory, nil
		}
		factory, err := l.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if factory == nil {
			return nil, errors.New("loader returned no player factory")
		}
		l.mu.Lock()
		l.factory = factory
		l.mu.Unlock()
		return factory, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(core.RemoteFactory), nil
	}
}

// Loaded reports whether a load has completed successfully.
func (l *SharedLoader) Loaded() bool {
	return l.loaded() != nil
}

// Reset forgets a memoized factory so the next Load runs again.
func (l *SharedLoader) Reset() {
	l.mu.Lock()
	l.factory = nil
	l.mu.Unlock()
	l.group.Forget("load")
}

func (l *SharedLoader) loaded() core.RemoteFactory {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.factory
}
