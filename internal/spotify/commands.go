// Package spotify drives playback on a Spotify Connect device through the Web API.
package spotify

import (
	"context"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"playdeck/internal/core"
)

// TrackURI returns the Spotify URI of a track id.
func TrackURI(trackID string) spotify.URI {
	return spotify.URI("spotify:track:" + trackID)
}

// api builds a Web API client authorized with a single access token.
type api struct {
	baseURL    string
	httpClient *http.Client
}

func (a api) client(ctx context.Context, accessToken string) *spotify.Client {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if a.httpClient != nil {
		httpClient.Timeout = a.httpClient.Timeout
	}
	return spotify.New(httpClient, spotify.WithBaseURL(a.baseURL))
}

// Commander issues play and pause directly against the Web API with a caller-supplied token.
type Commander struct {
	api    api
	logger *zap.Logger
}

// Play starts trackID from the beginning on deviceID.
func (c *Commander) Play(ctx context.Context, accessToken, deviceID, trackID string) error {
	device := spotify.ID(deviceID)
	err := c.api.client(ctx, accessToken).PlayOpt(ctx, &spotify.PlayOptions{
		DeviceID: &device,
		URIs:     []spotify.URI{TrackURI(trackID)},
	})
	if err != nil {
		return classify(err)
	}

	c.logger.Debug("Play command accepted",
		zap.String("deviceID", deviceID),
		zap.String("trackID", trackID))
	return nil
}

// Pause pauses deviceID.
func (c *Commander) Pause(ctx context.Context, accessToken, deviceID string) error {
	device := spotify.ID(deviceID)
	if err := c.api.client(ctx, accessToken).PauseOpt(ctx, &spotify.PlayOptions{DeviceID: &device}); err != nil {
		return classify(err)
	}
	return nil
}

func baseURL(config *core.SpotifyConfig) string {
	url := config.APIBaseURL
	if url == "" {
		url = "https://api.spotify.com/v1/"
	}
	if url[len(url)-1] != '/' {
		url += "/"
	}
	return url
}
