package example_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pollex.nl/orm"
	"pollex.nl/orm/example"
)

func setupStore(t *testing.T) (*example.Store, *orm.ORM) {
	t.Helper()
	ctx := context.Background()

	db, err := orm.Init(ctx, orm.Options{
		Entities: example.Entities(),
		Debug:    []orm.DebugFlag{orm.DebugQuery},
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })
	require.NoError(t, db.Schema().CreateSchema(ctx))

	return example.NewStore(db), db
}

func TestStoreCreateAndList(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	created, err := store.CreateAuthor(ctx, "Jeff", "Life of Jeff", "Cooking like Jeff")
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	t.Run("without expands books stay lazy", func(t *testing.T) {
		authors, err := store.ListAuthors(ctx, example.Opts{})
		require.NoError(t, err)
		require.Len(t, authors, 1)
		assert.Equal(t, "Jeff", authors[0].Name)
		assert.False(t, authors[0].Books.IsInitialized())
		assert.NotContains(t, example.AuthorSchema.ToJSON(authors[0]), "books")
	})

	t.Run("expanding books populates them", func(t *testing.T) {
		authors, err := store.ListAuthors(ctx, example.Opts{Expands: []string{"books"}})
		require.NoError(t, err)
		require.Len(t, authors, 1)
		require.True(t, authors[0].Books.IsInitialized())
		require.Equal(t, 2, authors[0].Books.Len())
		for _, book := range authors[0].Books.Items() {
			assert.Same(t, authors[0], book.Author.Get())
			assert.True(t, book.CreatedAt.Equal(created.CreatedAt))
		}
	})

	t.Run("unknown expand fails", func(t *testing.T) {
		_, err := store.ListAuthors(ctx, example.Opts{Expands: []string{"publisher"}})
		assert.ErrorIs(t, err, orm.ErrNoSuchRelation)
	})
}

func TestStoreRenameTouchesUpdatedAt(t *testing.T) {
	store, _ := setupStore(t)

	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	renamed := created.Add(time.Hour)

	ctx := orm.WithClock(context.Background(), orm.ClockFunc(func() time.Time { return created }))
	author, err := store.CreateAuthor(ctx, "Jeff")
	require.NoError(t, err)

	ctx = orm.WithClock(context.Background(), orm.ClockFunc(func() time.Time { return renamed }))
	got, err := store.RenameAuthor(ctx, author.ID, "Madonna")
	require.NoError(t, err)

	assert.Equal(t, "Madonna", got.Name)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(renamed))
}

func TestStoreRestoreFromJSONBytes(t *testing.T) {
	ctx := context.Background()
	store, db := setupStore(t)

	author, err := store.CreateAuthor(ctx, "Jon Snow", "Book of the North")
	require.NoError(t, err)

	raw, err := example.AuthorSchema.Serialize(author)
	require.NoError(t, err)

	var snapshot orm.Data
	require.NoError(t, json.Unmarshal(raw, &snapshot))

	em := db.Fork()
	restored, err := store.Restore(em, snapshot)
	require.NoError(t, err)

	assert.Equal(t, author.ID, restored.ID)
	assert.Equal(t, "Jon Snow", restored.Name)
	assert.True(t, restored.CreatedAt.Equal(author.CreatedAt))
	require.Equal(t, 1, restored.Books.Len())

	book := restored.Books.Items()[0]
	assert.Equal(t, "Book of the North", book.Title)
	assert.Same(t, restored, book.Author.Get())
	assert.Equal(t, author.ID, book.Author.ID())

	again, err := example.AuthorSchema.Serialize(restored)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(again))

	em.UnitOfWork().ComputeChangeSets()
	assert.Empty(t, em.UnitOfWork().ChangeSets())
}

func TestFailedFlushRestoresTimestamps(t *testing.T) {
	store, db := setupStore(t)

	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	ctx := orm.WithClock(context.Background(), orm.ClockFunc(func() time.Time { return created }))
	author, err := store.CreateAuthor(ctx, "Jon Snow", "Book of the North")
	require.NoError(t, err)

	em := db.Fork()
	loaded, err := orm.FindByID[example.Author](ctx, em, author.ID, "books")
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Books.Len())

	book := loaded.Books.Items()[0]
	before := book.UpdatedAt
	book.Title = "Book of the South"

	added, err := orm.Create[example.Book](em, orm.Data{"title": "Winter", "author": loaded}, orm.Persist(true))
	require.NoError(t, err)
	// The author still has books, deleting it violates their foreign key.
	require.NoError(t, em.Remove(loaded))

	later := orm.WithClock(context.Background(), orm.ClockFunc(func() time.Time { return created.Add(time.Hour) }))
	require.Error(t, em.Flush(later))

	assert.Zero(t, added.ID)
	assert.True(t, added.CreatedAt.IsZero())
	assert.True(t, added.UpdatedAt.IsZero())
	assert.True(t, book.UpdatedAt.Equal(before))
}
