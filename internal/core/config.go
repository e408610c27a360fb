package core

import (
	"time"
)

const (
	// DefaultServerPort is the HTTP port the control API listens on
	DefaultServerPort = 8080
	// DefaultPlayerName is the Spotify Connect device name the session attaches to
	DefaultPlayerName = "Music Similarity Studio"
	// DefaultInitialVolume is the volume a fresh session starts with
	DefaultInitialVolume = 0.8
	// DefaultCommandLimitPerMinute caps control commands per identity per minute
	DefaultCommandLimitPerMinute = 120
	// DefaultHistorySize is the number of recently started tracks kept in memory
	DefaultHistorySize = 500

	// DefaultPollInterval is how often the reconciler reads remote state directly
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultMuteSettleDelay lets the mute reach the device before pausing
	DefaultMuteSettleDelay = 120 * time.Millisecond
	// DefaultPauseConfirmTimeout bounds the wait for the remote to report paused
	DefaultPauseConfirmTimeout = 1000 * time.Millisecond
	// DefaultPauseConfirmInterval is the pause verification poll interval
	DefaultPauseConfirmInterval = 50 * time.Millisecond
	// DefaultSeekWindow is how long stale positions are suppressed after a seek
	DefaultSeekWindow = 600 * time.Millisecond
	// DefaultSeekTolerance accounts for device reporting lag behind a seek target
	DefaultSeekTolerance = 120 * time.Millisecond
	// DefaultInterpolationInterval is the refresh rate of the extrapolated position
	DefaultInterpolationInterval = 100 * time.Millisecond
	// DefaultCommandTimeout bounds background remote calls such as volume restore
	DefaultCommandTimeout = 5 * time.Second
)

type Config struct {
	Playback PlaybackConfig
	Spotify  SpotifyConfig
	Bridge   BridgeConfig
	History  HistoryConfig
	Server   ServerConfig
	Log      LogConfig
	App      AppConfig
}

// PlaybackConfig holds the controller's timing knobs. The defaults were chosen
// empirically against real devices and are not guaranteed by the platform.
type PlaybackConfig struct {
	PlayerName            string
	InitialVolume         float64
	CDMPath               string
	PollInterval          time.Duration
	MuteSettleDelay       time.Duration
	PauseConfirmTimeout   time.Duration
	PauseConfirmInterval  time.Duration
	SeekWindow            time.Duration
	SeekTolerance         time.Duration
	InterpolationInterval time.Duration
	CommandTimeout        time.Duration
}

type SpotifyConfig struct {
	APIBaseURL     string
	WatchInterval  time.Duration
	RequestTimeout time.Duration
}

type BridgeConfig struct {
	BaseURL string
	Timeout time.Duration
}

type HistoryConfig struct {
	Size   int
	DBPath string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Language              string
	Identity              string
	AutoEnable            bool
	CommandLimitPerMinute int
}

// DefaultPlaybackConfig returns the controller timings used when nothing is configured.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		PlayerName:            DefaultPlayerName,
		InitialVolume:         DefaultInitialVolume,
		PollInterval:          DefaultPollInterval,
		MuteSettleDelay:       DefaultMuteSettleDelay,
		PauseConfirmTimeout:   DefaultPauseConfirmTimeout,
		PauseConfirmInterval:  DefaultPauseConfirmInterval,
		SeekWindow:            DefaultSeekWindow,
		SeekTolerance:         DefaultSeekTolerance,
		InterpolationInterval: DefaultInterpolationInterval,
		CommandTimeout:        DefaultCommandTimeout,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Playback: DefaultPlaybackConfig(),
		Spotify: SpotifyConfig{
			APIBaseURL:     "https://api.spotify.com/v1/",
			WatchInterval:  time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Bridge: BridgeConfig{
			BaseURL: "http://localhost:8081",
			Timeout: 10 * time.Second,
		},
		History: HistoryConfig{
			Size: DefaultHistorySize,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:              "en",
			CommandLimitPerMinute: DefaultCommandLimitPerMinute,
		},
	}
}
