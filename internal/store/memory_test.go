package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/nonna/internal/database"
	"github.com/dukerupert/nonna/internal/model"
)

func TestMemoryLikeIsIdempotent(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	v := env.vault(t, alice, "Rossi")
	m := env.memory(t, alice, v.ID, "Beach")

	require.NoError(t, env.memories.Like(ctx, alice.ID, m.ID))
	require.ErrorIs(t, env.memories.Like(ctx, alice.ID, m.ID), model.ErrConflict)

	got, err := env.memories.Get(ctx, alice.ID, m.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.LikesCount)
	require.True(t, got.IsLiked)

	require.NoError(t, env.memories.Unlike(ctx, alice.ID, m.ID))
	require.ErrorIs(t, env.memories.Unlike(ctx, alice.ID, m.ID), model.ErrNotFound)
}

func TestMemoryConcurrentLikesYieldOneRow(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "likes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	env := newTestEnv(db)
	ctx := context.Background()

	alice := env.user(t, "alice")
	v := env.vault(t, alice, "Rossi")
	m := env.memory(t, alice, v.ID, "Beach")

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.memories.Like(ctx, alice.ID, m.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, model.ErrConflict)
	}
	require.Equal(t, 1, ok)

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM memory_likes WHERE memory_id = ?`, m.ID).Scan(&rows))
	require.Equal(t, 1, rows)
}

func TestMemoryHiddenFromOutsiders(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()
	alice, carol := env.user(t, "alice"), env.user(t, "carol")
	v := env.vault(t, alice, "Rossi")
	m := env.memory(t, alice, v.ID, "Beach")

	_, err := env.memories.Get(ctx, carol.ID, m.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
	require.ErrorIs(t, env.memories.Like(ctx, carol.ID, m.ID), model.ErrNotFound)
	_, err = env.memories.AddComment(ctx, carol.ID, m.ID, "hi")
	require.ErrorIs(t, err, model.ErrNotFound)

	list, err := env.memories.List(ctx, carol.ID, MemoryFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestMemoryCommentsAuthorOnly(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	v := env.vault(t, alice, "Rossi")
	_, err := env.vaults.AddMember(ctx, alice.ID, v.ID, bob.ID, model.RoleMember)
	require.NoError(t, err)
	m := env.memory(t, alice, v.ID, "Beach")

	c, err := env.memories.AddComment(ctx, bob.ID, m.ID, "lovely")
	require.NoError(t, err)
	require.Equal(t, "bob", c.UserName)

	_, err = env.memories.UpdateComment(ctx, alice.ID, m.ID, c.ID, "edited")
	require.ErrorIs(t, err, model.ErrNotFound)
	updated, err := env.memories.UpdateComment(ctx, bob.ID, m.ID, c.ID, "edited")
	require.NoError(t, err)
	require.Equal(t, "edited", updated.Text)

	d, err := env.memories.Detail(ctx, alice.ID, m.ID)
	require.NoError(t, err)
	require.Len(t, d.Comments, 1)
	require.Equal(t, 1, d.CommentsCount)

	require.ErrorIs(t, env.memories.DeleteComment(ctx, alice.ID, m.ID, c.ID), model.ErrNotFound)
	require.NoError(t, env.memories.DeleteComment(ctx, bob.ID, m.ID, c.ID))
}

func TestMemorySharesVisibleToBothSides(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	v := env.vault(t, alice, "Rossi")
	m := env.memory(t, alice, v.ID, "Beach")

	sh, err := env.memories.Share(ctx, alice.ID, m.ID, bob.ID, "look")
	require.NoError(t, err)
	require.Equal(t, "Beach", sh.MemoryTitle)

	_, err = env.memories.Share(ctx, alice.ID, m.ID, bob.ID, "again")
	require.ErrorIs(t, err, model.ErrConflict)
	_, err = env.memories.Share(ctx, carol.ID, m.ID, bob.ID, "")
	require.ErrorIs(t, err, model.ErrValidation)

	for _, u := range []*model.User{alice, bob} {
		list, err := env.memories.ListShares(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
	_, err = env.memories.GetShare(ctx, carol.ID, sh.ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, env.memories.DeleteShare(ctx, bob.ID, sh.ID))
}

func TestMemoryTimelineAndStats(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	v := env.vault(t, alice, "Rossi")

	d1 := time.Date(1998, 7, 1, 12, 0, 0, 0, time.UTC)
	d2 := time.Date(2005, 1, 2, 12, 0, 0, 0, time.UTC)
	for _, in := range []MemoryInput{
		{Title: "Old", Type: model.MemoryPhoto, DateTaken: &d1, VaultID: v.ID},
		{Title: "Newer", Type: model.MemoryRecipe, DateTaken: &d2, VaultID: v.ID},
		{Title: "Undated", Type: model.MemoryStory, VaultID: v.ID},
	} {
		_, err := env.memories.Create(ctx, alice.ID, in)
		require.NoError(t, err)
	}

	timeline, err := env.memories.Timeline(ctx, alice.ID, "")
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	require.Equal(t, "Newer", timeline[0].Title)
	require.Equal(t, "Old", timeline[1].Title)

	only, err := env.memories.Timeline(ctx, alice.ID, "1998")
	require.NoError(t, err)
	require.Len(t, only, 1)
	require.Equal(t, "Old", only[0].Title)
	require.NotNil(t, only[0].DateTaken)
	require.Equal(t, 1998, only[0].DateTaken.Year())

	require.NoError(t, env.memories.Like(ctx, alice.ID, only[0].ID))
	_, err = env.memories.AddComment(ctx, alice.ID, only[0].ID, "1998!")
	require.NoError(t, err)

	stats, err := env.memories.Stats(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalMemories)
	require.Len(t, stats.ByType, len(model.MemoryTypes))
	require.Equal(t, 0, stats.ByType[model.MemoryVideo])
	require.Equal(t, 1, stats.ByType[model.MemoryRecipe])
	require.Equal(t, map[string]int{"1998": 1, "2005": 1}, stats.ByYear)
	require.Equal(t, 1, stats.TotalLikes)
	require.Equal(t, 1, stats.TotalComments)
}

func TestPersonMemoryLinks(t *testing.T) {
	env := setupTestDB(t)
	ctx := context.Background()
	alice, carol := env.user(t, "alice"), env.user(t, "carol")
	v := env.vault(t, alice, "Rossi")
	vc := env.vault(t, carol, "Verdi")
	p := env.person(t, alice, v.ID, "Ana", "Rossi")
	m := env.memory(t, alice, v.ID, "Beach")
	hidden := env.memory(t, carol, vc.ID, "Secret")

	link, err := env.personMemory.Create(ctx, alice.ID, p.ID, m.ID, model.PersonMemorySubject)
	require.NoError(t, err)
	_, err = env.personMemory.Create(ctx, alice.ID, p.ID, m.ID, model.PersonMemoryNarrator)
	require.ErrorIs(t, err, model.ErrConflict)
	_, err = env.personMemory.Create(ctx, alice.ID, p.ID, hidden.ID, model.PersonMemorySubject)
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = env.personMemory.List(ctx, carol.ID, p.ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	updated, err := env.personMemory.UpdateRole(ctx, alice.ID, p.ID, link.ID, model.PersonMemoryMentioned)
	require.NoError(t, err)
	require.Equal(t, model.PersonMemoryMentioned, updated.Role)

	require.NoError(t, env.personMemory.Delete(ctx, alice.ID, p.ID, link.ID))
	links, err := env.personMemory.List(ctx, alice.ID, p.ID)
	require.NoError(t, err)
	require.Empty(t, links)
}
