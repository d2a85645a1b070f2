// Package suggest generates follow-up questions for an assistant reply.
// Suggestions are best-effort: any failure yields an empty list.
package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/travel-memory/core"
	"github.com/becomeliminal/travel-memory/llm"
	"github.com/becomeliminal/travel-memory/observability"
	"github.com/becomeliminal/travel-memory/preference"
)

// MaxSuggestions is the upper bound on returned suggestions.
const MaxSuggestions = 4

// Config holds Generator configuration.
type Config struct {
	// Max caps the number of suggestions, at most MaxSuggestions.
	Max int

	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

// DefaultConfig returns the defaults used when no Config is given.
func DefaultConfig() Config {
	return Config{
		Max:         MaxSuggestions,
		MaxTokens:   200,
		Temperature: 0.7,
		Timeout:     20 * time.Second,
	}
}

// Generator asks the completion capability for follow-up questions.
type Generator struct {
	completer llm.Completer
	prefs     *preference.Store
	metrics   *observability.Metrics
	config    Config
}

// Option configures a Generator.
type Option func(*Generator)

// WithPreferences grounds suggestions in the user's stored preferences.
func WithPreferences(s *preference.Store) Option {
	return func(g *Generator) {
		g.prefs = s
	}
}

// WithConfig sets the configuration. Zero fields take defaults.
func WithConfig(c Config) Option {
	return func(g *Generator) {
		d := DefaultConfig()
		if c.Max <= 0 || c.Max > MaxSuggestions {
			c.Max = d.Max
		}
		if c.MaxTokens <= 0 {
			c.MaxTokens = d.MaxTokens
		}
		if c.Timeout <= 0 {
			c.Timeout = d.Timeout
		}
		g.config = c
	}
}

// WithMetrics records suggestion outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// New creates a generator.
func New(completer llm.Completer, opts ...Option) *Generator {
	g := &Generator{completer: completer, config: DefaultConfig()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Suggest returns 0 to Max follow-up questions for lastResponse. It never
// fails; the result is non-nil.
func (g *Generator) Suggest(ctx context.Context, userID, lastResponse string) []string {
	if strings.TrimSpace(lastResponse) == "" {
		return []string{}
	}

	var prefs core.PreferenceSet
	if g.prefs != nil {
		prefs = g.prefs.Get(ctx, userID)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()
	text, err := g.completer.Complete(callCtx, llm.Request{
		Prompt:      buildPrompt(lastResponse, prefs, g.config.Max),
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		log.Warn().Str("component", "suggest").Err(err).Str("user_id", userID).Str("kind", llm.Kind(err)).
			Msg("suggestions unavailable")
		g.metrics.ObserveSuggestions("failed")
		return []string{}
	}

	suggestions := Parse(text, g.config.Max)
	if len(suggestions) == 0 {
		g.metrics.ObserveSuggestions("empty")
	} else {
		g.metrics.ObserveSuggestions("ok")
	}
	return suggestions
}

func buildPrompt(lastResponse string, prefs core.PreferenceSet, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A travel assistant just replied to a traveler:\n\n%s\n\n", lastResponse)
	if !prefs.Empty() {
		sb.WriteString("What we know about the traveler:\n")
		for _, cat := range prefs.OrderedCategories() {
			fmt.Fprintf(&sb, "- %s: %s\n", cat, strings.Join(prefs[cat], ", "))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Write up to %d short follow-up questions the traveler might ask next. "+
		"One question per line, nothing else.", limit)
	return sb.String()
}
