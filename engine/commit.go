package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/becomeliminal/travel-memory/core"
)

// completion is the outcome of the completion call that a commit depends
// on. Only a successful, non-empty completion may be committed.
type completion struct {
	text string
	ok   bool
}

// commit writes the user message and reply into every memory layer: one
// exchange into the recent window, both turns into the long-term index,
// and the preferences extracted from both texts. The caller holds the
// user's slot.
func (e *Engine) commit(ctx context.Context, state *userState, userID, message string, res completion) (core.Exchange, error) {
	if !res.ok || strings.TrimSpace(res.text) == "" {
		err := fmt.Errorf("%w: user %s", ErrConsistency, userID)
		if e.config.Strict {
			panic(err)
		}
		log.Error().Str("component", "engine").Err(err).Msg("refusing to commit")
		return core.Exchange{}, err
	}

	// Persistent stores outlive the process; continue after what they hold.
	if state.needsSeed() {
		state.seed(e.longTerm.MaxSequence(ctx, userID))
	}

	conversationID := state.conversationFor(message)
	userSeq, assistantSeq := state.nextSequences()
	now := e.now().UTC()

	ex := core.Exchange{
		User: core.Turn{
			UserID:         userID,
			Role:           core.RoleUser,
			Text:           message,
			Timestamp:      now,
			Sequence:       userSeq,
			ConversationID: conversationID,
		},
		Assistant: core.Turn{
			UserID:         userID,
			Role:           core.RoleAssistant,
			Text:           res.text,
			Timestamp:      now,
			Sequence:       assistantSeq,
			ConversationID: conversationID,
		},
	}

	e.shortTerm.Append(userID, ex)
	for _, t := range ex.Turns() {
		e.longTerm.Index(ctx, userID, t)
	}

	delta := e.extractor.Extract(message)
	delta.Merge(e.extractor.Extract(res.text))
	e.prefs.Merge(ctx, userID, delta)

	state.recordCommit(len(ex.Turns()), now)
	e.metrics.SetActiveUsers(len(e.ActiveUsers()))

	log.Debug().Str("component", "engine").Str("user_id", userID).
		Int64("sequence", assistantSeq).Str("conversation_id", conversationID).Int("preferences", delta.Len()).
		Msg("committed turn")
	return ex, nil
}
