// Package tokenbridge fetches short-lived playback tokens from the backend
// that holds the user's Spotify authorization.
package tokenbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"playdeck/internal/core"
)

const (
	tokenPath      = "/playback/token"
	defaultMessage = "Unable to fetch playback token"
	maxErrorBody   = 64 << 10
)

type Client struct {
	config     *core.BridgeConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func NewClient(config *core.BridgeConfig, logger *zap.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
	}
}

// Fetch asks the bridge for a playback token for identity. It never retries
// and never caches; every call is one request.
func (c *Client) Fetch(ctx context.Context, identity string) (*core.PlaybackToken, error) {
	if identity == "" {
		return nil, core.NewError(core.ErrMissingIdentity, "", nil)
	}

	endpoint := c.baseURL + tokenPath + "?" + url.Values{"userId": {identity}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.NewError(core.ErrTokenRequestFailed, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readErrorDetail(resp.Body)
		c.logger.Warn("Playback token request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		return nil, &core.Error{Kind: core.ErrTokenRequestFailed, Detail: detail, Status: resp.StatusCode}
	}

	var token core.PlaybackToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, core.NewError(core.ErrTokenRequestFailed, "", fmt.Errorf("failed to decode token response: %w", err))
	}

	c.logger.Debug("Fetched playback token",
		zap.Bool("eligible", token.Eligible),
		zap.String("product", token.Product),
		zap.Strings("missingScopes", token.MissingScopes))
	return &token, nil
}

// readErrorDetail extracts a human-readable message from a failed response:
// the JSON message or error field, the raw body when it is not JSON, else a default.
func readErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return defaultMessage
	}

	var parsed errorResponse
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
		return defaultMessage
	}

	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return defaultMessage
}
