// Package main provides the playdeck CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"playdeck/internal/capability"
	"playdeck/internal/core"
	"playdeck/internal/flood"
	httpserver "playdeck/internal/http"
	"playdeck/internal/i18n"
	"playdeck/internal/playback"
	"playdeck/internal/spotify"
	"playdeck/internal/store"
	"playdeck/internal/tokenbridge"
)

const (
	envPrefix         = "PLAYDECK"
	defaultServerHost = "0.0.0.0"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "playdeck",
	Short: "playdeck - remote Spotify playback controller",
	Long: `playdeck keeps a locally rendered transport (play, pause, seek, volume, progress)
in sync with a Spotify Connect device and exposes it as a JSON control API.`,
	RunE: runPlaydeck,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, text)")

	flags.String("identity", "", "Identity to start a session for on startup")
	flags.Bool("auto-enable", false, "Enable playback for --identity on startup")
	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Message language (%s)", supportedLangs))
	flags.Int("command-limit-per-minute", defaults.App.CommandLimitPerMinute,
		"Maximum playback commands per identity per minute (0 disables the limit)")

	flags.String("player-name", defaults.Playback.PlayerName, "Name of the Spotify Connect device to control")
	flags.Float64("initial-volume", defaults.Playback.InitialVolume, "Volume applied when a session connects (0-1)")
	flags.String("cdm-path", "", "Path of the Widevine CDM library (empty skips the check)")
	flags.Duration("poll-interval", defaults.Playback.PollInterval, "Remote state poll interval")
	flags.Duration("mute-settle-delay", defaults.Playback.MuteSettleDelay, "Delay after muting before pausing on a track switch")
	flags.Duration("pause-confirm-timeout", defaults.Playback.PauseConfirmTimeout, "How long a track switch waits for the pause to land")
	flags.Duration("pause-confirm-interval", defaults.Playback.PauseConfirmInterval, "Pause confirmation poll interval")
	flags.Duration("seek-window", defaults.Playback.SeekWindow, "How long stale positions are suppressed after a seek")
	flags.Duration("seek-tolerance", defaults.Playback.SeekTolerance, "Accepted distance between a seek target and a reported position")
	flags.Duration("interpolation-interval", defaults.Playback.InterpolationInterval, "Progress interpolation tick while a seek settles")
	flags.Duration("command-timeout", defaults.Playback.CommandTimeout, "Timeout for background remote commands")

	flags.String("spotify-api-base-url", defaults.Spotify.APIBaseURL, "Spotify Web API base URL")
	flags.Duration("spotify-watch-interval", defaults.Spotify.WatchInterval, "Spotify Connect device watch interval")
	flags.Duration("spotify-request-timeout", defaults.Spotify.RequestTimeout, "Spotify Web API request timeout")

	flags.String("bridge-url", defaults.Bridge.BaseURL, "Token bridge base URL")
	flags.Duration("bridge-timeout", defaults.Bridge.Timeout, "Token bridge request timeout")

	flags.Int("history-size", defaults.History.Size, "Number of started tracks kept in memory")
	flags.String("history-db-path", "", "SQLite play log path (empty disables the play log)")

	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Duration("server-read-timeout", defaults.Server.ReadTimeout, "HTTP server read timeout")
	flags.Duration("server-write-timeout", defaults.Server.WriteTimeout, "HTTP server write timeout")

	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configurePlayback(cfg)
	configureSpotify(cfg)
	configureBridge(cfg)
	configureHistory(cfg)
	configureServer(cfg)
	configureApp(cfg)

	return cfg
}

func configurePlayback(cfg *core.Config) {
	cfg.Playback.PlayerName = viper.GetString("player-name")
	if cfg.Playback.PlayerName == "" {
		cfg.Playback.PlayerName = core.DefaultPlayerName
	}
	cfg.Playback.InitialVolume = viper.GetFloat64("initial-volume")
	if cfg.Playback.InitialVolume < 0 || cfg.Playback.InitialVolume > 1 {
		fmt.Fprintf(os.Stderr, "Warning: Invalid initial volume (%v), using default (%v)\n",
			cfg.Playback.InitialVolume, core.DefaultInitialVolume)
		cfg.Playback.InitialVolume = core.DefaultInitialVolume
	}
	cfg.Playback.CDMPath = viper.GetString("cdm-path")

	defaults := core.DefaultPlaybackConfig()
	cfg.Playback.PollInterval = positiveDuration("poll-interval", defaults.PollInterval)
	cfg.Playback.MuteSettleDelay = positiveDuration("mute-settle-delay", defaults.MuteSettleDelay)
	cfg.Playback.PauseConfirmTimeout = positiveDuration("pause-confirm-timeout", defaults.PauseConfirmTimeout)
	cfg.Playback.PauseConfirmInterval = positiveDuration("pause-confirm-interval", defaults.PauseConfirmInterval)
	cfg.Playback.SeekWindow = positiveDuration("seek-window", defaults.SeekWindow)
	cfg.Playback.SeekTolerance = positiveDuration("seek-tolerance", defaults.SeekTolerance)
	cfg.Playback.InterpolationInterval = positiveDuration("interpolation-interval", defaults.InterpolationInterval)
	cfg.Playback.CommandTimeout = positiveDuration("command-timeout", defaults.CommandTimeout)
}

func configureSpotify(cfg *core.Config) {
	if base := viper.GetString("spotify-api-base-url"); base != "" {
		cfg.Spotify.APIBaseURL = base
	}
	cfg.Spotify.WatchInterval = positiveDuration("spotify-watch-interval", cfg.Spotify.WatchInterval)
	cfg.Spotify.RequestTimeout = positiveDuration("spotify-request-timeout", cfg.Spotify.RequestTimeout)
}

func configureBridge(cfg *core.Config) {
	cfg.Bridge.BaseURL = viper.GetString("bridge-url")
	cfg.Bridge.Timeout = positiveDuration("bridge-timeout", cfg.Bridge.Timeout)
}

func configureHistory(cfg *core.Config) {
	cfg.History.Size = viper.GetInt("history-size")
	if cfg.History.Size <= 0 {
		cfg.History.Size = core.DefaultHistorySize
	}
	cfg.History.DBPath = viper.GetString("history-db-path")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.ReadTimeout = positiveDuration("server-read-timeout", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = positiveDuration("server-write-timeout", cfg.Server.WriteTimeout)
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")
}

func configureApp(cfg *core.Config) {
	cfg.App.Identity = viper.GetString("identity")
	cfg.App.AutoEnable = viper.GetBool("auto-enable")

	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}
	if !i18n.IsSupported(cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(i18n.GetSupportedLanguages(), ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}

	cfg.App.CommandLimitPerMinute = viper.GetInt("command-limit-per-minute")
	if cfg.App.CommandLimitPerMinute < 0 {
		cfg.App.CommandLimitPerMinute = core.DefaultCommandLimitPerMinute
	}
}

// positiveDuration reads a duration flag, keeping fallback for zero or negative values.
func positiveDuration(key string, fallback time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	if strings.EqualFold(format, "text") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runPlaydeck(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting playdeck",
		zap.String("player", config.Playback.PlayerName),
		zap.String("bridge", config.Bridge.BaseURL),
		zap.String("spotify_api", config.Spotify.APIBaseURL),
		zap.String("language", config.App.Language))

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	return runServices(ctx, svcs)
}

type services struct {
	controller *playback.Controller
	httpServer *httpserver.Server
	history    *store.History
	playLog    *store.PlayLog
	gate       *flood.Floodgate
}

func initializeServices(ctx context.Context) (*services, error) {
	localizer := i18n.NewLocalizer(config.App.Language)

	var playLog *store.PlayLog
	if config.History.DBPath != "" {
		var err error
		playLog, err = store.OpenPlayLog(config.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open play log: %w", err)
		}
	}
	history := store.NewHistory(config.History.Size, playLog, logger.Named("history"))
	if playLog != nil {
		entries, err := playLog.Recent(ctx, "", config.History.Size)
		if err != nil {
			logger.Warn("Failed to restore play history", zap.Error(err))
		} else {
			history.Load(entries)
			logger.Info("Restored play history", zap.Int("tracks", history.Size()))
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := httpserver.NewMetrics(registry)

	platform := spotify.NewPlatform(&config.Spotify, logger.Named("spotify"))
	loader := playback.NewSharedLoader(platform.Load)

	controller := playback.New(playback.Options{
		Config:    config.Playback,
		Loader:    loader,
		Tokens:    tokenbridge.NewClient(&config.Bridge, logger.Named("tokenbridge")),
		Commands:  platform.Commander(),
		Probe:     capability.ForPath(config.Playback.CDMPath),
		Observer:  history,
		Metrics:   metrics,
		Localizer: localizer,
		Logger:    logger.Named("playback"),
	})
	logStatusChanges(controller)

	gate := flood.New(config.App.CommandLimitPerMinute)

	httpServer := httpserver.NewServer(&config.Server, httpserver.Options{
		Player:    controller,
		History:   history,
		Gate:      gate,
		Metrics:   metrics,
		Gatherer:  registry,
		Localizer: localizer,
	}, logger.Named("http"))

	return &services{
		controller: controller,
		httpServer: httpServer,
		history:    history,
		playLog:    playLog,
		gate:       gate,
	}, nil
}

// logStatusChanges logs every status transition of the controller.
func logStatusChanges(controller *playback.Controller) {
	var last core.Status
	controller.OnUpdate(func(snap playback.Snapshot) {
		if snap.Status == last {
			return
		}
		last = snap.Status
		fields := []zap.Field{zap.String("status", string(snap.Status))}
		if snap.ErrorKind != "" {
			fields = append(fields, zap.String("kind", snap.ErrorKind), zap.String("error", snap.Error))
		}
		logger.Info("Playback status changed", fields...)
	})
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		svcs.controller.Close()
		return nil
	})

	if config.App.AutoEnable && config.App.Identity != "" {
		svcs.controller.Configure(true, config.App.Identity)
	}

	logger.Info("playdeck started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("playdeck stopped with error", zap.Error(err))
		return err
	}

	logger.Info("playdeck stopped gracefully")
	return nil
}

func (s *services) close() {
	s.gate.Stop()
	s.history.Close()
	if s.playLog != nil {
		if err := s.playLog.Close(); err != nil {
			logger.Debug("Failed to close play log", zap.Error(err))
		}
	}
}

func validateConfig(cfg *core.Config) error {
	if cfg.Bridge.BaseURL == "" {
		return fmt.Errorf("token bridge URL is required")
	}
	if cfg.Spotify.APIBaseURL == "" {
		return fmt.Errorf("spotify API base URL is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.App.AutoEnable && cfg.App.Identity == "" {
		return fmt.Errorf("--auto-enable requires --identity")
	}
	if cfg.Playback.PauseConfirmInterval > cfg.Playback.PauseConfirmTimeout {
		return fmt.Errorf("pause confirm interval (%s) must not exceed its timeout (%s)",
			cfg.Playback.PauseConfirmInterval, cfg.Playback.PauseConfirmTimeout)
	}
	return nil
}
