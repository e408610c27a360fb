package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"playdeck/internal/core"
)

func TestSharedLoader_ConcurrentCallersShareOneLoad(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	factory := &fakeFactory{}
	loader := NewSharedLoader(func(ctx context.Context) (core.RemoteFactory, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return factory, nil
	})

	var wg sync.WaitGroup
	results := make([]core.RemoteFactory, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := loader.Load(context.Background())
			if err != nil {
				t.Errorf("Load() error = %v", err)
			}
			results[i] = f
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected one load, got %d", n)
	}
	for i, f := range results {
		if f != factory {
			t.Errorf("Caller %d got a different factory", i)
		}
	}
}

func TestSharedLoader_MemoizesSuccess(t *testing.T) {
	var calls int
	loader := NewSharedLoader(func(ctx context.Context) (core.RemoteFactory, error) {
		calls++
		return &fakeFactory{}, nil
	})

	for i := 0; i < 3; i++ {
		if _, err := loader.Load(context.Background()); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}

	if calls != 1 {
		t.Errorf("Expected one load, got %d", calls)
	}
	if !loader.Loaded() {
		t.Error("Expected loader to report loaded")
	}
}

func TestSharedLoader_FailureIsRetried(t *testing.T) {
	var calls int
	loader := NewSharedLoader(func(ctx context.Context) (core.RemoteFactory, error) {
		calls++
		if calls == 1 {
			return nil, errBoom
		}
		return &fakeFactory{}, nil
	})

	if _, err := loader.Load(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("Expected first load to fail, got %v", err)
	}
	if loader.Loaded() {
		t.Error("Expected a failed load not to be memoized")
	}
	if _, err := loader.Load(context.Background()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected two loads, got %d", calls)
	}
}

func TestSharedLoader_Reset(t *testing.T) {
	var calls int
	loader := NewSharedLoader(func(ctx context.Context) (core.RemoteFactory, error) {
		calls++
		return &fakeFactory{}, nil
	})

	_, _ = loader.Load(context.Background())
	loader.Reset()
	_, _ = loader.Load(context.Background())

	if calls != 2 {
		t.Errorf("Expected reload after reset, got %d loads", calls)
	}
}

func TestSharedLoader_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	loader := NewSharedLoader(func(ctx context.Context) (core.RemoteFactory, error) {
		<-release
		return &fakeFactory{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := loader.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	close(release)
	if _, err := loader.Load(context.Background()); err != nil {
		t.Errorf("Expected the shared load to complete, got %v", err)
	}
}

func TestController_SharesLoaderAcrossInstances(t *testing.T) {
	var calls int32
	factory := &fakeFactory{}
	shared := NewSharedLoader(func(ctx context.Context) (core.RemoteFactory, error) {
		atomic.AddInt32(&calls, 1)
		return factory, nil
	})

	first := newHarness(t, func(o *Options) { o.Loader = shared })
	second := newHarness(t, func(o *Options) { o.Loader = shared })
	first.ctrl.Configure(true, "u1")
	second.ctrl.Configure(true, "u2")

	waitFor(t, "both remotes", func() bool { return factory.count() == 2 })
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected one platform load for two controllers, got %d", n)
	}
}
