package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Session status lines
	"status.disabled":       "Playback is off. Enable it to play full tracks here.",
	"status.needs_identity": "Connect Spotify to play full tracks here.",
	"status.loading":        "Connecting to Spotify…",
	"status.ready":          "Spotify playback is ready.",
	"status.ready_device":   "Ready to play on %s.",

	// Error messages
	"error.generic":              "Something went wrong. Please try again.",
	"error.missing_identity":     "Connect Spotify before starting playback.",
	"error.token_request_failed": "Unable to fetch playback token",
	"error.premium_required":     "Spotify Premium is required for Web Playback.",
	"error.scopes_missing":       "Reauthorize Spotify to grant: %s",
	"error.playback_unavailable": "Playback not available for this account. Try reconnecting Spotify.",
	"error.sdk_load_failed":      "Failed to load the Spotify player.",
	"error.unsupported_platform": "This device cannot play encrypted media (Widevine), which Spotify requires.",
	"error.connect_failed":       "Spotify rejected the player connection.",
	"error.session_not_ready":    "The Spotify player is not ready yet.",
	"error.no_active_device":     "Spotify needs an active device. Open Spotify on any device and try again.",
	"error.command_failed":       "Spotify could not complete the playback command.",
	"error.rate_limited":         "Too many playback commands. Wait a moment and try again.",
	"error.bad_request":          "The request could not be understood.",
}
