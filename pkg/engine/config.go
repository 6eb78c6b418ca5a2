package engine

import (
	"golang.org/x/time/rate"

	"github.com/rhuss/converser/pkg/provider"
)

// Config holds configuration for the conversation engine.
type Config struct {
	// Model is the model identifier passed to the provider on every round.
	Model string

	// MaxToolRounds is the maximum number of provider rounds within a single
	// turn before the turn fails. Zero or negative means the default of 10.
	MaxToolRounds int

	// Controls are the default sampling parameters applied to every round.
	Controls provider.Controls

	// Limiter is an optional rate limiter awaited before each provider
	// round. Nil disables rate limiting.
	Limiter *rate.Limiter
}

// maxRounds returns the effective round cap, defaulting to 10.
func (c Config) maxRounds() int {
	if c.MaxToolRounds <= 0 {
		return 10
	}
	return c.MaxToolRounds
}
