// Package engine composes the prompt context for each chat turn and keeps
// the memory layers consistent with what the user was actually shown.
//
// A turn runs compose -> complete -> commit under a per-user slot, so two
// requests from the same user never interleave while other users proceed
// in parallel. Nothing is written to any memory layer unless the completion
// succeeded.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/travel-memory/core"
	"github.com/becomeliminal/travel-memory/llm"
	"github.com/becomeliminal/travel-memory/memory"
	"github.com/becomeliminal/travel-memory/observability"
	"github.com/becomeliminal/travel-memory/preference"
)

// Suggester produces follow-up questions for a reply. Implementations must
// not fail: an unusable result is an empty slice.
type Suggester interface {
	Suggest(ctx context.Context, userID, lastResponse string) []string
}

// Engine is the context composer.
type Engine struct {
	completer llm.Completer
	shortTerm *memory.ShortTermMemory[core.Exchange]
	longTerm  *memory.LongTermMemory
	prefs     *preference.Store
	extractor *preference.Extractor
	suggester Suggester
	metrics   *observability.Metrics
	config    Config
	now       func() time.Time

	mu    sync.Mutex
	users map[string]*userState
}

// Option configures the engine.
type Option func(*Engine)

// WithConfig sets the engine configuration. Zero fields take defaults.
func WithConfig(c Config) Option {
	return func(e *Engine) {
		e.config = c.withDefaults()
	}
}

// WithShortTerm sets the recency window.
func WithShortTerm(m *memory.ShortTermMemory[core.Exchange]) Option {
	return func(e *Engine) {
		e.shortTerm = m
	}
}

// WithLongTerm sets the semantic index. Without it recall is disabled.
func WithLongTerm(m *memory.LongTermMemory) Option {
	return func(e *Engine) {
		e.longTerm = m
	}
}

// WithPreferences sets the preference store.
func WithPreferences(s *preference.Store) Option {
	return func(e *Engine) {
		e.prefs = s
	}
}

// WithExtractor sets the preference extractor.
func WithExtractor(x *preference.Extractor) Option {
	return func(e *Engine) {
		e.extractor = x
	}
}

// WithSuggester attaches follow-up suggestions to chat replies.
func WithSuggester(s Suggester) Option {
	return func(e *Engine) {
		e.suggester = s
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine around a completion capability. Unset layers
// default to a six-turn window, no long-term recall, in-memory preferences
// and the built-in rule table.
func NewEngine(completer llm.Completer, opts ...Option) *Engine {
	e := &Engine{
		completer: completer,
		config:    DefaultConfig(),
		now:       time.Now,
		users:     make(map[string]*userState),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.shortTerm == nil {
		e.shortTerm = memory.NewShortTermMemory[core.Exchange](memory.DefaultShortTermSize)
	}
	if e.longTerm == nil {
		e.longTerm = memory.NewLongTermMemory(nil, nil, nil)
	}
	if e.prefs == nil {
		e.prefs = preference.NewStore(nil)
	}
	if e.extractor == nil {
		e.extractor = preference.NewExtractor(nil)
	}
	return e
}

// ComposedContext is the bounded bundle of memory handed to the completion
// call for one message. It lives for one request.
type ComposedContext struct {
	UserID  string
	Message string

	Recent      []core.Exchange
	Retrieved   []memory.ScoredRecord
	Preferences core.PreferenceSet
	Budget      BudgetReport

	// System is the system instructions; Body is everything after them.
	System string
	Body   string
}

// Prompt returns the full prompt text in section order.
func (c *ComposedContext) Prompt() string {
	return c.System + "\n\n" + c.Body
}

// Used summarizes what the context contains.
func (c *ComposedContext) Used() ContextUsed {
	return ContextUsed{
		RecentTurns:      len(c.Recent),
		RetrievedTurns:   len(c.Retrieved),
		PreferenceValues: c.Preferences.Len(),
		Chars:            c.Budget.Used,
		Trimmed:          c.Budget.Trimmed(),
	}
}

// ContextUsed reports how much memory went into a reply.
type ContextUsed struct {
	RecentTurns      int  `json:"recent_turns"`
	RetrievedTurns   int  `json:"retrieved_turns"`
	PreferenceValues int  `json:"preference_values"`
	Chars            int  `json:"chars"`
	Trimmed          bool `json:"trimmed"`
}

// Reply is the outcome of a successful chat turn.
type Reply struct {
	Text           string      `json:"response"`
	UserID         string      `json:"user_id"`
	ConversationID string      `json:"conversation_id"`
	Sequence       int64       `json:"sequence_index"`
	Context        ContextUsed `json:"context_used"`
	Suggestions    []string    `json:"suggestions"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Compose builds the context for message without calling the model or
// changing any memory.
func (e *Engine) Compose(ctx context.Context, userID, message string) (*ComposedContext, error) {
	if err := validate(userID, message); err != nil {
		return nil, err
	}
	return e.compose(ctx, userID, strings.TrimSpace(message)), nil
}

func (e *Engine) compose(ctx context.Context, userID, message string) *ComposedContext {
	recent := e.shortTerm.Recent(userID)
	retrieved := dedupRetrieved(e.longTerm.Query(ctx, userID, message, e.config.RetrieveK), recent)
	prefs := e.prefs.Get(ctx, userID)

	recent, retrieved, prefs, report := applyBudget(e.config.CharBudget, e.config.PrefsPerCategory, recent, retrieved, prefs)
	if report.Trimmed() {
		log.Debug().Str("component", "engine").Str("user_id", userID).
			Int("limit", report.Limit).Int("used", report.Used).Strs("stages", report.Stages).
			Msg("context trimmed to budget")
	}
	e.metrics.ObserveContext(len(retrieved), report.Used, report.Stages)

	return &ComposedContext{
		UserID:      userID,
		Message:     message,
		Recent:      recent,
		Retrieved:   retrieved,
		Preferences: prefs,
		Budget:      report,
		System:      e.config.SystemPrompt,
		Body:        renderBody(prefs, retrieved, recent, message),
	}
}

// dedupRetrieved drops retrieved turns whose text already appears verbatim
// in the recent window, and repeats among the retrieved turns themselves.
func dedupRetrieved(retrieved []memory.ScoredRecord, recent []core.Exchange) []memory.ScoredRecord {
	if len(retrieved) == 0 {
		return retrieved
	}
	seen := make(map[string]bool, 2*len(recent)+len(retrieved))
	for _, ex := range recent {
		seen[ex.User.Text] = true
		seen[ex.Assistant.Text] = true
	}
	out := make([]memory.ScoredRecord, 0, len(retrieved))
	for _, r := range retrieved {
		if seen[r.Record.Text()] {
			continue
		}
		seen[r.Record.Text()] = true
		out = append(out, r)
	}
	return out
}

// Chat runs one turn: compose, complete, and commit on success. A
// completion failure returns an error wrapping ErrTurnFailed and the llm
// failure kind, and leaves every memory layer untouched.
func (e *Engine) Chat(ctx context.Context, userID, message string) (*Reply, error) {
	return e.chat(ctx, userID, message, nil)
}

// ChatStream is Chat with reply text forwarded to onChunk as it arrives.
func (e *Engine) ChatStream(ctx context.Context, userID, message string, onChunk func(string)) (*Reply, error) {
	return e.chat(ctx, userID, message, onChunk)
}

func (e *Engine) chat(ctx context.Context, userID, message string, onChunk func(string)) (*Reply, error) {
	start := time.Now()
	if err := validate(userID, message); err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)

	state := e.user(userID)
	if err := state.acquire(ctx); err != nil {
		e.metrics.ObserveChat("canceled", time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrTurnFailed, err)
	}
	reply, err := e.turn(ctx, state, userID, message, onChunk)
	state.release()
	if err != nil {
		e.metrics.ObserveChat("failed", time.Since(start))
		return nil, err
	}

	// Suggestions are best-effort and need no exclusivity.
	reply.Suggestions = []string{}
	if e.suggester != nil {
		reply.Suggestions = e.suggester.Suggest(ctx, userID, reply.Text)
	}
	e.metrics.ObserveChat("ok", time.Since(start))
	return reply, nil
}

// turn runs while holding the user's slot.
func (e *Engine) turn(ctx context.Context, state *userState, userID, message string, onChunk func(string)) (*Reply, error) {
	cc := e.compose(ctx, userID, message)

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()
	text, err := e.completer.Complete(callCtx, llm.Request{
		System:      cc.System,
		Prompt:      cc.Body,
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
		Stream:      onChunk,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%w: empty text", llm.ErrMalformed)
	}
	if err != nil {
		kind := llm.Kind(err)
		log.Warn().Str("component", "engine").Err(err).Str("user_id", userID).Str("kind", kind).
			Msg("completion failed, nothing committed")
		e.metrics.ObserveCompletionFailure(e.completer.Name(), kind)
		return nil, fmt.Errorf("%w: %w", ErrTurnFailed, err)
	}

	// The reply has been produced; finish the commit even if the caller
	// goes away now.
	ex, err := e.commit(context.WithoutCancel(ctx), state, userID, message, completion{text: text, ok: true})
	if err != nil {
		return nil, err
	}

	return &Reply{
		Text:           ex.Assistant.Text,
		UserID:         userID,
		ConversationID: ex.Assistant.ConversationID,
		Sequence:       ex.Assistant.Sequence,
		Context:        cc.Used(),
		Timestamp:      ex.Assistant.Timestamp,
	}, nil
}

// Forget wipes everything known about userID: the recent window, the
// long-term index, preferences and conversation summaries. It waits for any
// in-flight turn of that user to finish first.
func (e *Engine) Forget(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUser
	}
	state := e.user(userID)
	if err := state.acquire(ctx); err != nil {
		return err
	}
	defer state.release()

	e.shortTerm.Clear(userID)
	err := errors.Join(
		e.longTerm.Clear(ctx, userID),
		e.prefs.Clear(ctx, userID),
	)
	state.reset()

	e.metrics.ObserveWipe()
	e.metrics.SetActiveUsers(len(e.ActiveUsers()))
	log.Info().Str("component", "engine").Str("user_id", userID).Msg("memory wiped")
	return err
}

// History returns userID's recent window, oldest first.
func (e *Engine) History(userID string) []core.Exchange {
	return e.shortTerm.Recent(userID)
}

// Preferences returns a snapshot of userID's preferences.
func (e *Engine) Preferences(ctx context.Context, userID string) core.PreferenceSet {
	return e.prefs.Get(ctx, userID)
}

// Conversations lists userID's conversations, most recent first.
func (e *Engine) Conversations(userID string) []core.ConversationSummary {
	state, ok := e.lookup(userID)
	if !ok {
		return []core.ConversationSummary{}
	}
	return state.summaries()
}

// ActiveUsers returns the users with committed turns since start or their
// last wipe, sorted.
func (e *Engine) ActiveUsers() []string {
	e.mu.Lock()
	states := make(map[string]*userState, len(e.users))
	for id, s := range e.users {
		states[id] = s
	}
	e.mu.Unlock()

	users := []string{}
	for id, s := range states {
		if s.active() {
			users = append(users, id)
		}
	}
	slices.Sort(users)
	return users
}

// Provider names the completion provider.
func (e *Engine) Provider() string {
	return e.completer.Name()
}

// RecallEnabled reports whether long-term recall is active.
func (e *Engine) RecallEnabled() bool {
	return e.longTerm.Enabled()
}

func (e *Engine) user(userID string) *userState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.users[userID]
	if !ok {
		s = newUserState()
		e.users[userID] = s
	}
	return s
}

func (e *Engine) lookup(userID string) (*userState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.users[userID]
	return s, ok
}

func validate(userID, message string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	return nil
}
