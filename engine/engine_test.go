package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/travel-memory/core"
	"github.com/becomeliminal/travel-memory/llm"
	"github.com/becomeliminal/travel-memory/llm/mock"
	"github.com/becomeliminal/travel-memory/memory"
	embeddermock "github.com/becomeliminal/travel-memory/memory/embedder/mock"
	"github.com/becomeliminal/travel-memory/memory/store/chromem"
	"github.com/becomeliminal/travel-memory/memory/store/sqlite"
	"github.com/becomeliminal/travel-memory/preference"
	"github.com/becomeliminal/travel-memory/suggest"
)

type fixture struct {
	engine    *Engine
	completer *mock.Completer
	embedder  *embeddermock.Embedder
	longTerm  *memory.LongTermMemory
	prefs     *preference.Store
}

func newFixture(t *testing.T, completer *mock.Completer, opts ...Option) *fixture {
	t.Helper()
	store, err := chromem.New()
	require.NoError(t, err)

	f := &fixture{
		completer: completer,
		embedder:  embeddermock.New(),
		prefs:     preference.NewStore(nil),
	}
	f.longTerm = memory.NewLongTermMemory(store, f.embedder, nil)

	base := []Option{
		WithLongTerm(f.longTerm),
		WithPreferences(f.prefs),
		WithConfig(Config{Strict: true, Timeout: time.Second}),
	}
	f.engine = NewEngine(completer, append(base, opts...)...)
	return f
}

func exchangeTexts(exchanges []core.Exchange) []string {
	var out []string
	for _, ex := range exchanges {
		out = append(out, ex.User.Text, ex.Assistant.Text)
	}
	return out
}

func TestChatCheapTripToItaly(t *testing.T) {
	f := newFixture(t, mock.Reply("Sounds great! Let me help you plan."))
	ctx := context.Background()

	reply, err := f.engine.Chat(ctx, "u1", "I want a cheap trip to Italy")
	require.NoError(t, err)

	assert.Equal(t, "Sounds great! Let me help you plan.", reply.Text)
	assert.Len(t, f.engine.History("u1"), 1)
	assert.Equal(t, core.PreferenceSet{
		core.CategoryBudget:       {"cheap"},
		core.CategoryDestinations: {"Italy"},
	}, f.engine.Preferences(ctx, "u1"))
	assert.Equal(t, 2, f.longTerm.Count(ctx, "u1"))
	assert.Equal(t, []string{}, reply.Suggestions)
}

func TestChatAssignsSequencesAndConversation(t *testing.T) {
	f := newFixture(t, mock.Script("First answer.", "Second answer."))
	ctx := context.Background()

	first, err := f.engine.Chat(ctx, "u1", "Where should I go in spring?")
	require.NoError(t, err)
	second, err := f.engine.Chat(ctx, "u1", "And in autumn?")
	require.NoError(t, err)

	history := f.engine.History("u1")
	require.Len(t, history, 2)
	assert.Equal(t, []int64{1, 2, 3, 4}, []int64{
		history[0].User.Sequence, history[0].Assistant.Sequence,
		history[1].User.Sequence, history[1].Assistant.Sequence,
	})
	assert.Equal(t, core.RoleUser, history[0].User.Role)
	assert.Equal(t, core.RoleAssistant, history[0].Assistant.Role)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	convs := f.engine.Conversations("u1")
	require.Len(t, convs, 1)
	assert.Equal(t, "Where should I go in spring?", convs[0].Title)
	assert.Equal(t, 4, convs[0].MessageCount)
}

func TestChatFailureLeavesMemoryUntouched(t *testing.T) {
	f := newFixture(t, mock.Reply("Rome is a good start."))
	ctx := context.Background()

	_, err := f.engine.Chat(ctx, "u1", "Thinking about Rome")
	require.NoError(t, err)

	historyBefore := f.engine.History("u1")
	prefsBefore := f.engine.Preferences(ctx, "u1")
	recordsBefore := f.longTerm.Count(ctx, "u1")
	convsBefore := f.engine.Conversations("u1")

	f.completer.SetHandler(func(context.Context, llm.Request) (string, error) {
		return "", fmt.Errorf("%w: 503", llm.ErrProvider)
	})
	reply, err := f.engine.Chat(ctx, "u1", "Actually a luxury trip to Japan")

	assert.Nil(t, reply)
	assert.ErrorIs(t, err, ErrTurnFailed)
	assert.ErrorIs(t, err, llm.ErrProvider)
	assert.Equal(t, historyBefore, f.engine.History("u1"))
	assert.Equal(t, prefsBefore, f.engine.Preferences(ctx, "u1"))
	assert.Equal(t, recordsBefore, f.longTerm.Count(ctx, "u1"))
	assert.Equal(t, convsBefore, f.engine.Conversations("u1"))
}

func TestChatEmptyCompletionIsMalformed(t *testing.T) {
	f := newFixture(t, mock.Reply("   "))

	_, err := f.engine.Chat(context.Background(), "u1", "Hello")

	assert.ErrorIs(t, err, ErrTurnFailed)
	assert.ErrorIs(t, err, llm.ErrMalformed)
	assert.Empty(t, f.engine.History("u1"))
}

func TestChatTimeoutCommitsNothingAndSuggestStillWorks(t *testing.T) {
	f := newFixture(t, mock.Hang(), WithConfig(Config{Strict: true, Timeout: 30 * time.Millisecond}))
	ctx := context.Background()

	_, err := f.engine.Chat(ctx, "u1", "I want a cheap trip to Italy")

	assert.ErrorIs(t, err, ErrTurnFailed)
	assert.ErrorIs(t, err, llm.ErrTimeout)
	assert.Empty(t, f.engine.History("u1"))
	assert.True(t, f.engine.Preferences(ctx, "u1").Empty())
	assert.Zero(t, f.longTerm.Count(ctx, "u1"))
	assert.Empty(t, f.engine.Conversations("u1"))

	g := suggest.New(mock.Hang(), suggest.WithConfig(suggest.Config{Timeout: 20 * time.Millisecond}))
	assert.Equal(t, []string{}, g.Suggest(ctx, "u1", "previous reply"))
}

func TestChatAttachesSuggestions(t *testing.T) {
	s := suggest.New(mock.Reply("1. What about Venice?\n2. Train or car?"))
	f := newFixture(t, mock.Reply("Italy is wonderful."), WithSuggester(s))

	reply, err := f.engine.Chat(context.Background(), "u1", "Italy ideas?")
	require.NoError(t, err)

	assert.Equal(t, []string{"What about Venice?", "Train or car?"}, reply.Suggestions)
}

func TestChatStreamForwardsChunks(t *testing.T) {
	f := newFixture(t, mock.Reply("Pack light."))

	var chunks []string
	reply, err := f.engine.ChatStream(context.Background(), "u1", "Packing tips?", func(s string) {
		chunks = append(chunks, s)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Pack light."}, chunks)
	assert.Equal(t, "Pack light.", reply.Text)
}

func TestChatValidatesInput(t *testing.T) {
	f := newFixture(t, mock.Reply("hi"))
	ctx := context.Background()

	_, err := f.engine.Chat(ctx, "", "hello")
	assert.ErrorIs(t, err, ErrEmptyUser)
	_, err = f.engine.Chat(ctx, "u1", "  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = f.engine.Compose(ctx, "u1", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, f.completer.Calls())
}

func TestComposeDedupsRetrievedAgainstRecent(t *testing.T) {
	f := newFixture(t,
		mock.Script("Kyoto has many temples.", "Osaka is great for food.", "Try Kinkaku-ji."),
		WithShortTerm(memory.NewShortTermMemory[core.Exchange](1)),
	)
	ctx := context.Background()

	for _, msg := range []string{"Kyoto temples", "Osaka food", "Kyoto temples"} {
		_, err := f.engine.Chat(ctx, "u1", msg)
		require.NoError(t, err)
	}

	// Both earlier copies of the message are in the index...
	raw := f.longTerm.Query(ctx, "u1", "Kyoto temples", 2)
	require.Len(t, raw, 2)
	assert.Equal(t, "Kyoto temples", raw[0].Record.Text())
	assert.Equal(t, "Kyoto temples", raw[1].Record.Text())

	// ...but neither reaches the context while the recent window holds it.
	cc, err := f.engine.Compose(ctx, "u1", "Kyoto temples")
	require.NoError(t, err)

	recent := exchangeTexts(cc.Recent)
	assert.Equal(t, []string{"Kyoto temples", "Try Kinkaku-ji."}, recent)
	require.NotEmpty(t, cc.Retrieved)
	for _, r := range cc.Retrieved {
		assert.NotContains(t, recent, r.Record.Text())
	}
}

func TestDedupRetrieved(t *testing.T) {
	rec := func(seq int64, text string) memory.ScoredRecord {
		return memory.ScoredRecord{Record: &memory.Record{Turn: core.Turn{UserID: "u1", Sequence: seq, Text: text}}, Score: 1}
	}
	recent := []core.Exchange{{
		User:      core.Turn{Text: "Lisbon in May?"},
		Assistant: core.Turn{Text: "May is lovely."},
	}}

	out := dedupRetrieved([]memory.ScoredRecord{
		rec(1, "Lisbon in May?"),
		rec(3, "Porto wine cellars"),
		rec(5, "Lisbon in May?"),
		rec(7, "Porto wine cellars"),
	}, recent)

	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].Record.Turn.Sequence)
	assert.Equal(t, []string{"Lisbon in May?", "May is lovely."}, exchangeTexts(recent))
}

func TestComposePromptOrder(t *testing.T) {
	f := newFixture(t, mock.Script("Paris has great museums.", "Budget hostels exist."),
		WithShortTerm(memory.NewShortTermMemory[core.Exchange](1)))
	ctx := context.Background()

	_, err := f.engine.Chat(ctx, "u1", "Museums in Paris")
	require.NoError(t, err)
	_, err = f.engine.Chat(ctx, "u1", "Cheap places to sleep")
	require.NoError(t, err)

	cc, err := f.engine.Compose(ctx, "u1", "What about Paris museums on Mondays?")
	require.NoError(t, err)
	prompt := cc.Prompt()

	positions := []int{
		strings.Index(prompt, TravelInstructions),
		strings.Index(prompt, headingProfile),
		strings.Index(prompt, headingBackground),
		strings.Index(prompt, headingRecent),
		strings.Index(prompt, headingCurrent),
	}
	for i, p := range positions {
		require.GreaterOrEqual(t, p, 0, "section %d missing", i)
		if i > 0 {
			assert.Greater(t, p, positions[i-1], "section %d out of order", i)
		}
	}
	assert.Contains(t, prompt, "- Destinations: Paris")
	assert.Contains(t, prompt, "User: Cheap places to sleep")
	assert.True(t, strings.HasSuffix(prompt, "User: What about Paris museums on Mondays?"))
	assert.Contains(t, cc.Body[strings.Index(cc.Body, headingBackground):strings.Index(cc.Body, headingRecent)], "Museums in Paris")
}

func TestComposeWithoutMemoryHasOnlyCurrentMessage(t *testing.T) {
	f := newFixture(t, mock.Reply("x"))

	cc, err := f.engine.Compose(context.Background(), "new-user", "Hi there")
	require.NoError(t, err)

	assert.Equal(t, headingCurrent+"\nUser: Hi there", cc.Body)
	assert.Empty(t, cc.Recent)
	assert.Empty(t, cc.Retrieved)
	assert.False(t, cc.Budget.Trimmed())
}

func TestComposeDegradesWhenEmbeddingFails(t *testing.T) {
	f := newFixture(t, mock.Reply("Noted."))
	ctx := context.Background()

	_, err := f.engine.Chat(ctx, "u1", "Beach towns in Spain")
	require.NoError(t, err)

	f.embedder.SetError(errors.New("embedding service down"))
	reply, err := f.engine.Chat(ctx, "u1", "More beaches")
	require.NoError(t, err)

	assert.Zero(t, reply.Context.RetrievedTurns)
	assert.Len(t, f.engine.History("u1"), 2)
	assert.Equal(t, 2, f.longTerm.Count(ctx, "u1"))
}

func TestPerUserSerialization(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	completer := mock.New(func(ctx context.Context, req llm.Request) (string, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	})
	f := newFixture(t, completer)

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.engine.Chat(context.Background(), "u1", fmt.Sprintf("message %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	history := f.engine.History("u1")
	require.Len(t, history, 5)
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].User.Sequence, history[i-1].Assistant.Sequence)
	}
}

func TestDifferentUsersRunConcurrently(t *testing.T) {
	started := map[string]chan struct{}{"u1": make(chan struct{}), "u2": make(chan struct{})}
	completer := mock.New(func(ctx context.Context, req llm.Request) (string, error) {
		me, other := "u1", "u2"
		if strings.Contains(req.Prompt, "from u2") {
			me, other = "u2", "u1"
		}
		close(started[me])
		select {
		case <-started[other]:
			return "ok", nil
		case <-time.After(2 * time.Second):
			return "", fmt.Errorf("%w: other user never started", llm.ErrTimeout)
		}
	})
	f := newFixture(t, completer, WithConfig(Config{Strict: true, Timeout: 5 * time.Second}))

	var wg sync.WaitGroup
	for _, u := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := f.engine.Chat(context.Background(), u, "hello from "+u)
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()
}

func TestChatWaitingForSlotHonoursCancellation(t *testing.T) {
	f := newFixture(t, mock.Reply("ok"))
	state := f.engine.user("u1")
	require.NoError(t, state.acquire(context.Background()))
	defer state.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.engine.Chat(ctx, "u1", "hello")

	assert.ErrorIs(t, err, ErrTurnFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, f.completer.Calls())
}

func TestForgetWipesEveryLayer(t *testing.T) {
	f := newFixture(t, mock.Reply("Enjoy Tokyo on a budget."))
	ctx := context.Background()

	_, err := f.engine.Chat(ctx, "u1", "Cheap eats in Tokyo")
	require.NoError(t, err)
	_, err = f.engine.Chat(ctx, "u2", "Solo trip to Dubai")
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, f.engine.ActiveUsers())

	require.NoError(t, f.engine.Forget(ctx, "u1"))

	stats := f.engine.Stats(ctx, "u1")
	assert.Zero(t, stats.ShortTermTurns)
	assert.Zero(t, stats.LongTermRecords)
	assert.Zero(t, stats.PreferenceCategories)
	assert.Zero(t, stats.Conversations)
	assert.Equal(t, []string{"u2"}, f.engine.ActiveUsers())
	assert.Equal(t, 1, f.engine.Stats(ctx, "u2").ShortTermTurns)

	reply, err := f.engine.Chat(ctx, "u1", "Starting over")
	require.NoError(t, err)
	assert.Equal(t, int64(4), reply.Sequence)
	convs := f.engine.Conversations("u1")
	require.Len(t, convs, 1)
	assert.Equal(t, "Starting over", convs[0].Title)
}

func TestStatsAndOverview(t *testing.T) {
	f := newFixture(t, mock.Reply("Paris and London are both great."))
	ctx := context.Background()

	assert.Equal(t, Stats{UserID: "ghost", Preferences: core.PreferenceSet{}}, f.engine.Stats(ctx, "ghost"))

	_, err := f.engine.Chat(ctx, "u1", "A family trip to France")
	require.NoError(t, err)

	stats := f.engine.Stats(ctx, "u1")
	assert.Equal(t, 1, stats.ShortTermTurns)
	assert.Equal(t, 2, stats.LongTermRecords)
	assert.Equal(t, 3, stats.DestinationsDiscussed) // France, Paris, London
	assert.Equal(t, 2, stats.PreferenceCategories)
	assert.Equal(t, 1, stats.Conversations)

	overview := f.engine.Overview(ctx)
	assert.Equal(t, 1, overview.ActiveUsers)
	require.Len(t, overview.Users, 1)
	assert.Equal(t, "u1", overview.Users[0].UserID)
}

func TestConversationTitleIsTruncated(t *testing.T) {
	f := newFixture(t, mock.Reply("ok"))
	long := strings.Repeat("a", 75)

	_, err := f.engine.Chat(context.Background(), "u1", long)
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("a", 60), f.engine.Conversations("u1")[0].Title)
}

func TestCommitGuard(t *testing.T) {
	t.Run("strict panics", func(t *testing.T) {
		f := newFixture(t, mock.Reply("ok"))
		state := f.engine.user("u1")

		assert.PanicsWithError(t, "commit without a successful completion: user u1", func() {
			f.engine.commit(context.Background(), state, "u1", "hello", completion{})
		})
		assert.Empty(t, f.engine.History("u1"))
	})
	t.Run("lenient returns error", func(t *testing.T) {
		f := newFixture(t, mock.Reply("ok"), WithConfig(Config{Strict: false}))
		state := f.engine.user("u1")

		_, err := f.engine.commit(context.Background(), state, "u1", "hello", completion{text: "", ok: true})

		assert.ErrorIs(t, err, ErrConsistency)
		assert.Empty(t, f.engine.History("u1"))
		assert.Empty(t, f.engine.Conversations("u1"))
	})
}

func TestSequencesContinueAfterRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ltm.db")

	start := func(reply string) (*Engine, *sqlite.Store) {
		store, err := sqlite.Open(ctx, path)
		require.NoError(t, err)
		ltm := memory.NewLongTermMemory(store, embeddermock.New(), nil)
		eng := NewEngine(mock.Reply(reply),
			WithLongTerm(ltm),
			WithPreferences(preference.NewStore(nil)),
			WithConfig(Config{Strict: true, Timeout: time.Second}),
		)
		return eng, store
	}

	first, store := start("Lisbon is lovely in May.")
	reply, err := first.Chat(ctx, "u1", "Where in Portugal?")
	require.NoError(t, err)
	require.Equal(t, int64(2), reply.Sequence)
	require.NoError(t, store.Close())

	second, store := start("Porto has great wine.")
	defer store.Close()
	reply, err = second.Chat(ctx, "u1", "What about the north?")
	require.NoError(t, err)
	assert.Equal(t, int64(4), reply.Sequence)

	history := second.History("u1")
	require.Len(t, history, 1)
	assert.Equal(t, int64(3), history[0].User.Sequence)

	embedding, err := embeddermock.New().Embed(ctx, "Portugal")
	require.NoError(t, err)
	results, err := store.Query(ctx, "u1", embedding, 10)
	require.NoError(t, err)
	require.Len(t, results, 4)
	seen := map[int64]bool{}
	for _, r := range results {
		assert.False(t, seen[r.Record.Turn.Sequence], "sequence %d reused", r.Record.Turn.Sequence)
		seen[r.Record.Turn.Sequence] = true
	}

	// Other users are seeded independently.
	reply, err = second.Chat(ctx, "u2", "Hello")
	require.NoError(t, err)
	assert.Equal(t, int64(2), reply.Sequence)
}
