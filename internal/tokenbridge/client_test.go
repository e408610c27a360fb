package tokenbridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"playdeck/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(&core.BridgeConfig{BaseURL: server.URL + "/"}, zap.NewNop())
}

func TestFetch_Success(t *testing.T) {
	var gotPath, gotUser string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser = r.URL.Query().Get("userId")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"eligible":true,"premium":true,"product":"premium","accessToken":"tok"}`))
	})

	token, err := client.Fetch(context.Background(), "u 1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotPath != "/playback/token" || gotUser != "u 1" {
		t.Errorf("Unexpected request %s userId=%q", gotPath, gotUser)
	}
	if !token.Eligible || token.AccessToken != "tok" || token.Product != "premium" {
		t.Errorf("Unexpected token %+v", token)
	}
	if token.Premium == nil || !*token.Premium {
		t.Error("Expected premium to be decoded")
	}
}

func TestFetch_IneligibleAccount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"eligible":false,"premium":false,"product":"free","missingScopes":["streaming"]}`))
	})

	token, err := client.Fetch(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !reflect.DeepEqual(token.MissingScopes, []string{"streaming"}) {
		t.Errorf("Unexpected scopes %v", token.MissingScopes)
	}
	if _, err := token.Authorize(); !errors.Is(err, core.ErrPremiumRequired) {
		t.Errorf("Expected ErrPremiumRequired, got %v", err)
	}
}

func TestFetch_MissingIdentity(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := client.Fetch(context.Background(), "")

	if !errors.Is(err, core.ErrMissingIdentity) {
		t.Errorf("Expected ErrMissingIdentity, got %v", err)
	}
	if called {
		t.Error("Expected no request without identity")
	}
}

func TestFetch_ErrorDetails(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{"json message", http.StatusUnauthorized, `{"message":"Spotify session expired"}`, "Spotify session expired"},
		{"json error", http.StatusBadRequest, `{"error":"userId is required"}`, "userId is required"},
		{"raw text", http.StatusBadGateway, "upstream down\n", "upstream down"},
		{"empty body", http.StatusInternalServerError, "", "Unable to fetch playback token"},
		{"json without fields", http.StatusInternalServerError, `{}`, "Unable to fetch playback token"},
		{"json with other fields", http.StatusInternalServerError, `{"foo":1}`, "Unable to fetch playback token"},
		{"json empty message", http.StatusBadRequest, `{"message":""}`, "Unable to fetch playback token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Fetch(context.Background(), "u1")

			if !errors.Is(err, core.ErrTokenRequestFailed) {
				t.Fatalf("Expected ErrTokenRequestFailed, got %v", err)
			}
			if got := core.Detail(err); got != tt.wantDetail {
				t.Errorf("Expected detail %q, got %q", tt.wantDetail, got)
			}
		})
	}
}

func TestFetch_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient(&core.BridgeConfig{BaseURL: server.URL}, zap.NewNop())
	server.Close()

	_, err := client.Fetch(context.Background(), "u1")

	if !errors.Is(err, core.ErrTokenRequestFailed) {
		t.Errorf("Expected ErrTokenRequestFailed, got %v", err)
	}
}
