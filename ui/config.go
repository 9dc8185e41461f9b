package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	// Width of the view; set from the terminal when known.
	Width int

	// MaxErrors is how many recent failures the view keeps.
	MaxErrors int `env:"CAPTION_VOICE_TUI_ERRORS" envDefault:"5"`

	// Refresh is how often slot and service status are re-read.
	Refresh time.Duration `env:"CAPTION_VOICE_TUI_REFRESH" envDefault:"250ms"`

	// For debugging the UI
	AltScreen bool `env:"CAPTION_VOICE_TUI_ALTSCREEN" envDefault:"false"`
}
