package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"playdeck/internal/core"
)

type apiRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   string
}

// fakeAPI is a minimal Spotify Web API player endpoint.
type fakeAPI struct {
	mu       sync.Mutex
	devices  []map[string]interface{}
	state    map[string]interface{}
	requests []apiRequest
	failures map[string]apiFailure
	server   *httptest.Server
}

type apiFailure struct {
	status  int
	message string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{failures: make(map[string]apiFailure)}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) baseURL() string {
	return f.server.URL + "/v1/"
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/v1/")

	f.mu.Lock()
	f.requests = append(f.requests, apiRequest{
		method: r.Method,
		path:   path,
		query:  r.URL.RawQuery,
		auth:   r.Header.Get("Authorization"),
		body:   string(body),
	})
	failure, failing := f.failures[r.Method+" "+path]
	devices := f.devices
	state := f.state
	f.mu.Unlock()

	if failing {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(failure.status)
		_, _ = fmt.Fprintf(w, `{"error":{"status":%d,"message":%q}}`, failure.status, failure.message)
		return
	}

	switch {
	case r.Method == http.MethodGet && path == "me/player/devices":
		writeJSON(w, map[string]interface{}{"devices": devices})
	case r.Method == http.MethodGet && path == "me/player":
		if state == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, state)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "me/player"):
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) setDevices(devices ...map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
}

func (f *fakeAPI) setState(state map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

func (f *fakeAPI) fail(method, path string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+path] = apiFailure{status: status, message: message}
}

func (f *fakeAPI) clearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]apiFailure)
}

func (f *fakeAPI) find(method, path string) []apiRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found []apiRequest
	for _, r := range f.requests {
		if r.method == method && r.path == path {
			found = append(found, r)
		}
	}
	return found
}

func device(id, name string, volume int) map[string]interface{} {
	return map[string]interface{}{
		"id":             id,
		"is_active":      true,
		"is_restricted":  false,
		"name":           name,
		"type":           "Computer",
		"volume_percent": volume,
	}
}

func playerState(deviceID, trackID string, progress int, playing bool) map[string]interface{} {
	return map[string]interface{}{
		"device":      device(deviceID, core.DefaultPlayerName, 80),
		"progress_ms": progress,
		"is_playing":  playing,
		"item": map[string]interface{}{
			"id":          trackID,
			"name":        "Song " + trackID,
			"duration_ms": 200000,
			"artists":     []map[string]interface{}{{"name": "Artist One"}, {"name": "Artist Two"}},
			"album": map[string]interface{}{
				"name":   "Album",
				"images": []map[string]interface{}{{"url": "https://img/" + trackID, "height": 640, "width": 640}},
			},
		},
	}
}

func newTestPlatform(f *fakeAPI) *Platform {
	return NewPlatform(&core.SpotifyConfig{
		APIBaseURL:     f.baseURL(),
		WatchInterval:  10 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}, zap.NewNop())
}

func staticToken(token string) core.TokenFunc {
	return func(ctx context.Context) (string, error) { return token, nil }
}

// eventLog collects player events.
type eventLog struct {
	mu     sync.Mutex
	events []core.Event
	last   map[core.Event]core.EventPayload
}

func watchEvents(p core.Remote) *eventLog {
	log := &eventLog{last: make(map[core.Event]core.EventPayload)}
	all := append([]core.Event{core.EventReady, core.EventNotReady, core.EventStateChanged}, core.ErrorEvents...)
	for _, event := range all {
		event := event
		p.On(event, func(payload core.EventPayload) {
			log.mu.Lock()
			defer log.mu.Unlock()
			log.events = append(log.events, event)
			log.last[event] = payload
		})
	}
	return log
}

func (l *eventLog) payload(event core.Event) (core.EventPayload, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.last[event]
	return p, ok
}

func (l *eventLog) count(event core.Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == event {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
