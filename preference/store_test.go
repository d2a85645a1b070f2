package preference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/travel-memory/core"
)

func TestStoreMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	delta := core.PreferenceDelta{
		core.CategoryBudget:       {"cheap"},
		core.CategoryDestinations: {"Italy"},
	}

	assert.True(t, s.Merge(ctx, "u1", delta))
	once := s.Get(ctx, "u1")
	assert.False(t, s.Merge(ctx, "u1", delta))

	assert.Equal(t, once, s.Get(ctx, "u1"))
}

func TestStoreMergeDedupsCaseInsensitively(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	s.Merge(ctx, "u1", core.PreferenceDelta{core.CategoryDestinations: {"Italy"}})
	s.Merge(ctx, "u1", core.PreferenceDelta{core.CategoryDestinations: {"ITALY", "Spain"}})

	assert.Equal(t, []string{"Italy", "Spain"}, s.Get(ctx, "u1")[core.CategoryDestinations])
}

func TestStoreGetReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	s.Merge(ctx, "u1", core.PreferenceDelta{core.CategoryBudget: {"cheap"}})

	snap := s.Get(ctx, "u1")
	snap[core.CategoryBudget][0] = "luxury"
	snap.Add(core.CategoryTravelStyle, "solo")

	assert.Equal(t, core.PreferenceSet{core.CategoryBudget: {"cheap"}}, s.Get(ctx, "u1"))
}

func TestStoreUnknownUserAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	assert.True(t, s.Get(ctx, "nobody").Empty())

	s.Merge(ctx, "u1", core.PreferenceDelta{core.CategoryBudget: {"cheap"}})
	s.Merge(ctx, "u2", core.PreferenceDelta{core.CategoryBudget: {"luxury"}})
	require.NoError(t, s.Clear(ctx, "u1"))

	assert.True(t, s.Get(ctx, "u1").Empty())
	assert.Equal(t, []string{"luxury"}, s.Get(ctx, "u2")[core.CategoryBudget])
}

func TestStoreConcurrentMerges(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Merge(ctx, "u1", core.PreferenceDelta{core.CategoryDestinations: {fmt.Sprintf("place-%d", i)}})
			_ = s.Get(ctx, "u1")
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Get(ctx, "u1")[core.CategoryDestinations], 20)
}

func TestStorePersistsThroughSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.db")

	p, err := NewPersister(ctx, path)
	require.NoError(t, err)
	s := NewStore(p)
	s.Merge(ctx, "u1", core.PreferenceDelta{
		core.CategoryDestinations: {"Japan", "Tokyo"},
		core.CategoryBudget:       {"budget"},
	})
	s.Merge(ctx, "u2", core.PreferenceDelta{core.CategoryTravelStyle: {"family"}})
	require.NoError(t, s.Close())

	p, err = NewPersister(ctx, "sqlite://"+path)
	require.NoError(t, err)
	reopened := NewStore(p)
	defer reopened.Close()

	assert.Equal(t, core.PreferenceSet{
		core.CategoryDestinations: {"Japan", "Tokyo"},
		core.CategoryBudget:       {"budget"},
	}, reopened.Get(ctx, "u1"))

	require.NoError(t, reopened.Clear(ctx, "u2"))
	assert.True(t, reopened.Get(ctx, "u2").Empty())

	saved, err := p.Load(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, saved.Empty())
}

func TestNewPersisterEmptyURL(t *testing.T) {
	p, err := NewPersister(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPostgresPersister(t *testing.T) {
	url := os.Getenv("TRAVELMEM_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TRAVELMEM_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	p, err := NewPersister(ctx, url)
	require.NoError(t, err)
	defer p.Close()

	user := "test-" + t.Name()
	require.NoError(t, p.Delete(ctx, user))
	require.NoError(t, p.Save(ctx, user, core.PreferenceSet{core.CategoryBudget: {"cheap"}}))

	got, err := p.Load(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, core.PreferenceSet{core.CategoryBudget: {"cheap"}}, got)

	require.NoError(t, p.Delete(ctx, user))
	got, err = p.Load(ctx, user)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}
