package engine

import "time"

// Config holds Engine configuration.
type Config struct {
	// RetrieveK is how many long-term turns are recalled per message.
	// Default: 3.
	RetrieveK int

	// CharBudget bounds the characters of memory (recent + retrieved +
	// preferences) placed in a prompt. The new message is not counted.
	// Zero or negative disables trimming.
	// Default: 6000.
	CharBudget int

	// PrefsPerCategory is the per-category cap applied when the budget
	// forces preferences to be trimmed.
	// Default: 3.
	PrefsPerCategory int

	// MaxTokens and Temperature are passed to the completion call.
	// Defaults: 1200, 0.8.
	MaxTokens   int64
	Temperature float64

	// Timeout bounds a single completion call.
	// Default: 60s.
	Timeout time.Duration

	// SystemPrompt replaces the built-in travel instructions.
	SystemPrompt string

	// Strict turns consistency-guard violations into panics. Use in
	// development and tests.
	Strict bool
}

// DefaultConfig returns the defaults used when no Config is given.
func DefaultConfig() Config {
	return Config{
		RetrieveK:        3,
		CharBudget:       6000,
		PrefsPerCategory: 3,
		MaxTokens:        1200,
		Temperature:      0.8,
		Timeout:          60 * time.Second,
		SystemPrompt:     TravelInstructions,
	}
}

// withDefaults fills zero fields from DefaultConfig. CharBudget is left
// alone so that zero keeps meaning "unbounded".
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RetrieveK <= 0 {
		c.RetrieveK = d.RetrieveK
	}
	if c.PrefsPerCategory <= 0 {
		c.PrefsPerCategory = d.PrefsPerCategory
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	return c
}
