package i18n

// germanMessages contains all German translations.
var germanMessages = map[string]string{
	"status.disabled":       "Wiedergabe ist aus. Schalte sie ein, um ganze Titel hier abzuspielen.",
	"status.needs_identity": "Verbinde Spotify, um ganze Titel hier abzuspielen.",
	"status.loading":        "Verbindung zu Spotify wird hergestellt…",
	"status.ready":          "Spotify-Wiedergabe ist bereit.",
	"status.ready_device":   "Bereit zur Wiedergabe auf %s.",

	"error.generic":              "Etwas ist schiefgelaufen. Bitte versuche es erneut.",
	"error.missing_identity":     "Verbinde Spotify, bevor du die Wiedergabe startest.",
	"error.token_request_failed": "Wiedergabe-Token konnte nicht geladen werden",
	"error.premium_required":     "Für die Web-Wiedergabe wird Spotify Premium benötigt.",
	"error.scopes_missing":       "Autorisiere Spotify erneut und erlaube: %s",
	"error.playback_unavailable": "Wiedergabe ist für dieses Konto nicht verfügbar. Verbinde Spotify neu.",
	"error.sdk_load_failed":      "Der Spotify-Player konnte nicht geladen werden.",
	"error.unsupported_platform": "Dieses Gerät kann keine verschlüsselten Medien (Widevine) abspielen, die Spotify voraussetzt.",
	"error.connect_failed":       "Spotify hat die Player-Verbindung abgelehnt.",
	"error.session_not_ready":    "Der Spotify-Player ist noch nicht bereit.",
	"error.no_active_device":     "Spotify braucht ein aktives Gerät. Öffne Spotify auf einem Gerät und versuche es erneut.",
	"error.command_failed":       "Spotify konnte den Wiedergabebefehl nicht ausführen.",
	"error.rate_limited":         "Zu viele Wiedergabebefehle. Warte einen Moment und versuche es erneut.",
	"error.bad_request":          "Die Anfrage konnte nicht verstanden werden.",
}
