package engine

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/travel-memory/core"
)

// titleLength caps conversation titles.
const titleLength = 60

// userState is the per-user bookkeeping the memory layers do not keep:
// the serialization slot, the turn counter and conversation summaries.
type userState struct {
	// slot serializes compose -> complete -> commit for one user. A
	// channel rather than a mutex so that waiting honours cancellation.
	slot chan struct{}

	mu            sync.Mutex
	seq           int64
	seeded        bool // seq has been raised to the store's high-water mark
	conversations []core.ConversationSummary // oldest first; last is current
	open          bool                       // false until the first commit after start or a wipe
}

func newUserState() *userState {
	return &userState{slot: make(chan struct{}, 1)}
}

// acquire waits for the user's slot or for ctx to end.
func (s *userState) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *userState) release() {
	<-s.slot
}

// needsSeed reports whether the counter has not yet been seeded.
func (s *userState) needsSeed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.seeded
}

// seed raises the counter to at least floor, once.
func (s *userState) seed(floor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeded = true
	s.seq = max(s.seq, floor)
}

// nextSequences reserves two consecutive sequence numbers.
func (s *userState) nextSequences() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq += 2
	return s.seq - 1, s.seq
}

// conversationFor returns the current conversation ID, opening a new
// conversation titled after message when none is open.
func (s *userState) conversationFor(message string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		s.conversations = append(s.conversations, core.ConversationSummary{
			ConversationID: uuid.NewString(),
			Title:          truncateTitle(message),
		})
		s.open = true
	}
	return s.conversations[len(s.conversations)-1].ConversationID
}

// recordCommit updates the current conversation's summary.
func (s *userState) recordCommit(messages int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conversations) == 0 {
		return
	}
	cur := &s.conversations[len(s.conversations)-1]
	cur.MessageCount += messages
	cur.LastTimestamp = at
}

// summaries returns the conversations, most recent first.
func (s *userState) summaries() []core.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.conversations)
	slices.Reverse(out)
	return out
}

func (s *userState) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// reset forgets conversations. The sequence counter keeps counting so that
// sequence numbers are never reused.
func (s *userState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = nil
	s.open = false
}

func truncateTitle(message string) string {
	message = strings.TrimSpace(message)
	runes := []rune(message)
	if len(runes) <= titleLength {
		return message
	}
	return string(runes[:titleLength])
}
