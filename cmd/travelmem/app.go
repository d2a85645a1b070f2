package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/travel-memory/config"
	"github.com/becomeliminal/travel-memory/core"
	"github.com/becomeliminal/travel-memory/engine"
	"github.com/becomeliminal/travel-memory/llm"
	llmmock "github.com/becomeliminal/travel-memory/llm/mock"
	"github.com/becomeliminal/travel-memory/memory"
	"github.com/becomeliminal/travel-memory/memory/embedder/cached"
	embeddermock "github.com/becomeliminal/travel-memory/memory/embedder/mock"
	openaiembedder "github.com/becomeliminal/travel-memory/memory/embedder/openai"
	"github.com/becomeliminal/travel-memory/memory/store/chromem"
	"github.com/becomeliminal/travel-memory/memory/store/sqlite"
	"github.com/becomeliminal/travel-memory/observability"
	"github.com/becomeliminal/travel-memory/preference"
	"github.com/becomeliminal/travel-memory/suggest"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultOpenAIModel    = "llama-3.1-8b-instant"
)

// app is the wired service.
type app struct {
	engine    *engine.Engine
	metrics   *observability.Metrics
	storeKind string
	closers   []func() error
}

// Close releases every backend, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{metrics: observability.NewMetrics(cfg.Metrics.Namespace)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	completer, err := newCompleter(cfg.LLM)
	if err != nil {
		return nil, err
	}

	longTerm, err := a.newLongTerm(ctx, cfg)
	if err != nil {
		return nil, err
	}

	persister, err := preference.NewPersister(ctx, cfg.Preferences.DatabaseURL)
	if err != nil {
		return nil, err
	}
	prefs := preference.NewStore(persister)
	a.closers = append(a.closers, prefs.Close)

	rules := preference.DefaultRules
	if cfg.Preferences.RulesFile != "" {
		if rules, err = preference.LoadRules(cfg.Preferences.RulesFile); err != nil {
			return nil, err
		}
	}

	opts := []engine.Option{
		engine.WithConfig(engine.Config{
			RetrieveK:        cfg.Memory.RetrieveK,
			CharBudget:       cfg.Memory.CharBudget,
			PrefsPerCategory: cfg.Memory.PrefsPerCategory,
			MaxTokens:        cfg.LLM.MaxTokens,
			Temperature:      cfg.LLM.Temperature,
			Timeout:          cfg.LLM.Timeout,
			Strict:           cfg.Memory.Strict,
		}),
		engine.WithShortTerm(memory.NewShortTermMemory[core.Exchange](cfg.Memory.ShortTermSize)),
		engine.WithLongTerm(longTerm),
		engine.WithPreferences(prefs),
		engine.WithExtractor(preference.NewExtractor(rules)),
		engine.WithMetrics(a.metrics),
	}
	if cfg.Suggest.Enabled {
		opts = append(opts, engine.WithSuggester(suggest.New(completer,
			suggest.WithPreferences(prefs),
			suggest.WithConfig(suggest.Config{
				Max:         cfg.Suggest.Max,
				MaxTokens:   cfg.Suggest.MaxTokens,
				Temperature: cfg.Suggest.Temperature,
				Timeout:     cfg.Suggest.Timeout,
			}),
			suggest.WithMetrics(a.metrics),
		)))
	}
	a.engine = engine.NewEngine(completer, opts...)

	log.Info().Str("component", "app").
		Str("provider", completer.Name()).Str("embedder", cfg.Embedder.Provider).Str("store", a.storeKind).
		Bool("persistent_preferences", persister != nil).
		Msg("travelmem ready")
	return a, nil
}

func newCompleter(cfg config.LLMConfig) (llm.Completer, error) {
	switch cfg.Provider {
	case "anthropic":
		model := cfg.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropicoption.WithBaseURL(cfg.BaseURL))
		}
		client := anthropic.NewClient(opts...)
		return llm.NewAnthropic(&client, model), nil
	case "openai":
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = llm.GroqBaseURL
		}
		client := openai.NewClient(openaioption.WithAPIKey(cfg.APIKey), openaioption.WithBaseURL(baseURL))
		return llm.NewOpenAI(&client, model), nil
	case "mock":
		return llmmock.Echo(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// newLongTerm builds the embedder and vector store. Provider "none" leaves
// recall disabled.
func (a *app) newLongTerm(ctx context.Context, cfg *config.Config) (*memory.LongTermMemory, error) {
	if cfg.Embedder.Provider == "none" {
		a.storeKind = "none"
		return memory.NewLongTermMemory(nil, nil, nil), nil
	}

	var emb memory.Embedder
	switch cfg.Embedder.Provider {
	case "mock":
		emb = embeddermock.New(embeddermock.WithDimensions(cfg.Embedder.Dimensions))
	case "openai":
		e, err := openaiembedder.New(openaiembedder.Config{
			APIKey:     cfg.Embedder.APIKey,
			BaseURL:    cfg.Embedder.BaseURL,
			Model:      cfg.Embedder.Model,
			Dimensions: cfg.Embedder.Dimensions,
			MaxRetries: -1,
		})
		if err != nil {
			return nil, err
		}
		emb = e
	case "onnx":
		e, closeFn, err := newONNXEmbedder(cfg.Embedder)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeFn)
		emb = e
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Embedder.Provider)
	}

	if cfg.Embedder.CacheSize > 0 {
		c, err := cached.New(emb, int(cfg.Embedder.CacheSize))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { c.Close(); return nil })
		emb = c
	}

	var store memory.Store
	switch cfg.Memory.Store {
	case "chromem":
		var (
			s   *chromem.Store
			err error
		)
		if dir := strings.TrimSpace(cfg.Memory.PersistDir); dir != "" {
			s, err = chromem.NewPersistent(dir, false)
		} else {
			s, err = chromem.New()
		}
		if err != nil {
			return nil, err
		}
		store = s
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Memory.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown memory store %q", cfg.Memory.Store)
	}
	a.closers = append(a.closers, store.Close)
	a.storeKind = cfg.Memory.Store

	return memory.NewLongTermMemory(store, emb, &memory.Config{Enabled: true}), nil
}
