package spotify

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/zmb3/spotify/v2"

	"playdeck/internal/core"
)

var httpStatusPattern = regexp.MustCompile(`HTTP (\d{3})`)

// apiStatus returns the HTTP status of a Web API error, 0 for other errors.
func apiStatus(err error) (int, string) {
	var value spotify.Error
	if errors.As(err, &value) {
		return value.Status, value.Message
	}
	var ptr *spotify.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Status, ptr.Message
	}
	// responses without a JSON body only carry the status in the message
	if match := httpStatusPattern.FindStringSubmatch(err.Error()); match != nil {
		status, _ := strconv.Atoi(match[1])
		return status, ""
	}
	return 0, ""
}

// classify maps a failed player command to a playback error kind. A 404
// means the device is gone or was never activated.
func classify(err error) error {
	if err == nil || core.KindOf(err) != nil || core.IsTransient(err) {
		return err
	}

	status, message := apiStatus(err)
	switch {
	case status == http.StatusNotFound:
		return &core.Error{Kind: core.ErrNoActiveDevice, Detail: message, Status: status, Err: err}
	case status == http.StatusForbidden && strings.Contains(strings.ToLower(message), "premium"):
		return &core.Error{Kind: core.ErrPremiumRequired, Detail: message, Status: status, Err: err}
	default:
		return &core.Error{Kind: core.ErrPlaybackCommandFailed, Detail: message, Status: status, Err: err}
	}
}

// eventFor picks the remote event reporting a failed background API call, if any.
func eventFor(err error) (core.Event, bool) {
	status, _ := apiStatus(err)
	switch status {
	case http.StatusUnauthorized:
		return core.EventAuthenticationError, true
	case http.StatusForbidden:
		return core.EventAccountError, true
	default:
		return "", false
	}
}
