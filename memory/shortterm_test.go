package memory_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/travel-memory/core"
	"github.com/becomeliminal/travel-memory/memory"
)

func turn(userID string, seq int64, text string) core.Turn {
	role := core.RoleUser
	if seq%2 == 1 {
		role = core.RoleAssistant
	}
	return core.Turn{
		UserID:    userID,
		Role:      role,
		Text:      text,
		Timestamp: time.Unix(1700000000+seq, 0).UTC(),
		Sequence:  seq,
	}
}

func texts(turns []core.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Text
	}
	return out
}

func TestShortTermEvictsOldest(t *testing.T) {
	stm := memory.NewShortTermMemory[core.Turn](2)

	stm.Append("u1", turn("u1", 0, "A"))
	stm.Append("u1", turn("u1", 1, "B"))
	stm.Append("u1", turn("u1", 2, "C"))

	assert.Equal(t, []string{"B", "C"}, texts(stm.Recent("u1")))
	assert.Equal(t, 2, stm.Len("u1"))
}

func TestShortTermKeepsLastN(t *testing.T) {
	stm := memory.NewShortTermMemory[core.Turn](6)

	for i := range 10 {
		stm.Append("u1", turn("u1", int64(i), fmt.Sprintf("t%d", i)))
	}

	assert.Equal(t, []string{"t4", "t5", "t6", "t7", "t8", "t9"}, texts(stm.Recent("u1")))
}

func TestShortTermDefaultCapacity(t *testing.T) {
	assert.Equal(t, memory.DefaultShortTermSize, memory.NewShortTermMemory[core.Turn](0).Capacity())
	assert.Equal(t, 6, memory.DefaultShortTermSize)
}

func TestShortTermUnknownUserIsEmpty(t *testing.T) {
	stm := memory.NewShortTermMemory[core.Turn](3)

	assert.Empty(t, stm.Recent("nobody"))
	assert.Zero(t, stm.Len("nobody"))
}

func TestShortTermRecentIsACopy(t *testing.T) {
	stm := memory.NewShortTermMemory[core.Turn](3)
	stm.Append("u1", turn("u1", 0, "original"))

	recent := stm.Recent("u1")
	recent[0].Text = "mutated"

	assert.Equal(t, []string{"original"}, texts(stm.Recent("u1")))
}

func TestShortTermClearAndIsolation(t *testing.T) {
	stm := memory.NewShortTermMemory[core.Turn](3)
	stm.Append("u1", turn("u1", 0, "mine"))
	stm.Append("u2", turn("u2", 0, "theirs"))

	stm.Clear("u1")

	assert.Empty(t, stm.Recent("u1"))
	assert.Equal(t, []string{"theirs"}, texts(stm.Recent("u2")))

	stm.Append("u1", turn("u1", 1, "again"))
	assert.Equal(t, []string{"again"}, texts(stm.Recent("u1")))
}

func TestShortTermConcurrentUsers(t *testing.T) {
	stm := memory.NewShortTermMemory[core.Turn](4)

	var wg sync.WaitGroup
	for u := range 8 {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", u)
			for i := range 20 {
				stm.Append(user, turn(user, int64(i), fmt.Sprintf("%s-%d", user, i)))
				_ = stm.Recent(user)
			}
		}(u)
	}
	wg.Wait()

	for u := range 8 {
		user := fmt.Sprintf("u%d", u)
		recent := stm.Recent(user)
		require.Len(t, recent, 4)
		for i, tr := range recent {
			assert.Equal(t, fmt.Sprintf("%s-%d", user, 16+i), tr.Text)
		}
	}
}
