package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type envSection struct {
	title string
	flags []string
}

var envSections = []envSection{
	{"Session", []string{"identity", "auto-enable", "language", "command-limit-per-minute"}},
	{"Token Bridge", []string{"bridge-url", "bridge-timeout"}},
	{"Spotify Connect Device", []string{"player-name", "initial-volume", "cdm-path",
		"spotify-api-base-url", "spotify-watch-interval", "spotify-request-timeout"}},
	{"Playback Timings", []string{"poll-interval", "mute-settle-delay", "pause-confirm-timeout",
		"pause-confirm-interval", "seek-window", "seek-tolerance", "interpolation-interval", "command-timeout"}},
	{"Play History", []string{"history-size", "history-db-path"}},
	{"HTTP Server Configuration", []string{"server-host", "server-port", "server-read-timeout", "server-write-timeout"}},
	{"Logging Configuration", []string{"log-level", "log-format"}},
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# playdeck Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	fmt.Fprintf(&content, "# Format: %s_<SETTING>=value\n", envPrefix)
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections {
		generateSection(&content, cmd, section)
	}
	generateTroubleshootingSection(&content)

	return content.String()
}

func generateSection(content *strings.Builder, cmd *cobra.Command, section envSection) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", section.title)
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# CLI: --%s\n", strings.Join(section.flags, ", --"))

	for _, name := range section.flags {
		f := cmd.PersistentFlags().Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(content, "# %s (default: %q)\n", f.Usage, f.DefValue)
		fmt.Fprintf(content, "%s=%s\n", flagToEnvVar(name), f.DefValue)
	}
	content.WriteString("\n")
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func generateTroubleshootingSection(content *strings.Builder) {
	content.WriteString("# =============================================================================\n")
	content.WriteString("# TROUBLESHOOTING\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("\n")
	content.WriteString("# Issue: \"Status stays loading\"\n")
	fmt.Fprintf(content, "# - Open Spotify on a device named like %s\n", flagToEnvVar("player-name"))
	content.WriteString("# - Check the device list with GET https://api.spotify.com/v1/me/player/devices\n")
	content.WriteString("\n")
	content.WriteString("# Issue: \"Premium required\" or \"Reauthorize Spotify\"\n")
	content.WriteString("# - Web playback needs Spotify Premium and the streaming scopes\n")
	content.WriteString("# - Sign in again through the token bridge to grant missing scopes\n")
	content.WriteString("\n")
	content.WriteString("# Issue: \"Spotify needs an active device\"\n")
	content.WriteString("# - Start playback once in any Spotify app, then retry\n")
	fmt.Fprintf(content, "# - Check logs with %s=debug\n", flagToEnvVar("log-level"))
}
