package spotify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"playdeck/internal/core"
)

// Platform loads the Spotify Connect integration and constructs players.
type Platform struct {
	config     *core.SpotifyConfig
	api        api
	httpClient *http.Client
	logger     *zap.Logger
}

func NewPlatform(config *core.SpotifyConfig, logger *zap.Logger) *Platform {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	return &Platform{
		config:     config,
		api:        api{baseURL: baseURL(config), httpClient: httpClient},
		httpClient: httpClient,
		logger:     logger,
	}
}

// Load verifies that the Web API answers at all. Any HTTP response counts;
// authorization is checked per session when a player connects.
func (p *Platform) Load(ctx context.Context) (core.RemoteFactory, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.api.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify web api unreachable: %w", err)
	}
	resp.Body.Close()

	p.logger.Info("Spotify platform loaded",
		zap.String("baseURL", p.api.baseURL),
		zap.Int("probeStatus", resp.StatusCode))
	return p, nil
}

// NewRemote creates a Connect player for one session.
func (p *Platform) NewRemote(opts core.RemoteOptions) core.Remote {
	return newConnectPlayer(opts, p.api, p.config.WatchInterval, p.logger.Named("connect"))
}

// Commander returns direct play/pause commands sharing the platform's HTTP client.
func (p *Platform) Commander() *Commander {
	return &Commander{api: p.api, logger: p.logger.Named("commands")}
}
