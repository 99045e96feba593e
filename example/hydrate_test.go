package example_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pollex.nl/orm"
	"pollex.nl/orm/example"
)

var db *orm.ORM

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	db, err = orm.Init(ctx, orm.Options{
		DBName:             ":memory:",
		Entities:           example.Entities(),
		Debug:              []orm.DebugFlag{orm.DebugQuery, orm.DebugQueryParams},
		Logger:             zap.NewExample(),
		PersistOnCreate:    true,
		AllowGlobalContext: true, // only for testing
	})
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	if err := db.Schema().RefreshDatabase(ctx); err != nil {
		log.Fatalf("refresh database: %v", err)
	}

	code := m.Run()

	if err := db.Close(); err != nil {
		log.Printf("close: %v", err)
	}
	os.Exit(code)
}

func TestHydrateEntityFromJSONWithoutQuerying(t *testing.T) {
	ctx := context.Background()
	em := db.EM()

	author, err := orm.Create[example.Author](em, orm.Data{"name": "Jon Snow"})
	require.NoError(t, err)
	_, err = orm.Create[example.Book](em, orm.Data{"title": "Book of the North", "author": author})
	require.NoError(t, err)
	require.NoError(t, em.Flush(ctx))

	// Serialize including the books collection, then emulate a new request context.
	pojo := example.AuthorSchema.ToJSON(author)
	em.Clear()

	// Usable as if loaded by a query, but without a trip to the database.
	entity, err := orm.Create[example.Author](em, pojo, orm.Managed(false), orm.Persist(false))
	require.NoError(t, err)

	got := example.AuthorSchema.ToPOJO(entity)
	assert.Len(t, got, 5)
	assert.Equal(t, int64(1), got["id"])
	assert.Equal(t, "Jon Snow", got["name"])
	assert.IsType(t, time.Time{}, got["createdAt"])
	assert.IsType(t, time.Time{}, got["updatedAt"])

	require.Len(t, got["books"], 1)
	book, ok := got["books"].([]any)[0].(orm.Data)
	require.True(t, ok)
	assert.Len(t, book, 5)
	assert.Equal(t, int64(1), book["id"])
	assert.Equal(t, "Book of the North", book["title"])
	assert.IsType(t, time.Time{}, book["createdAt"])
	assert.IsType(t, time.Time{}, book["updatedAt"])
	require.IsType(t, orm.Data{}, book["author"])
	assert.Equal(t, int64(1), book["author"].(orm.Data)["id"])

	assert.Equal(t, pojo, example.AuthorSchema.ToJSON(entity))

	// Make sure that the change set is empty
	uow := em.UnitOfWork()
	uow.ComputeChangeSets()
	assert.Empty(t, uow.ChangeSets())
	assert.False(t, em.Contains(entity))
	assert.NoError(t, em.Flush(ctx))
}
