package orm_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pollex.nl/orm"
)

func TestBasicModelUsage(t *testing.T) {
	// Arrange
	db := setupORM(t)
	seed(t, db)

	authors, err := author.Query().Collect(context.Background(), db.DB())
	require.NoError(t, err)

	// Assert
	assert.Len(t, authors, 2)
	for i := range 2 {
		assert.NotEmpty(t, authors[i].Name)
		assert.NotEmpty(t, authors[i].ID)
		assert.NotEmpty(t, authors[i].Tags)
		assert.False(t, authors[i].Books.IsInitialized())
	}
}

func TestBasicModelRelation(t *testing.T) {
	// Arrange
	db := setupORM(t)
	seed(t, db)
	ctx := context.Background()

	t.Run("populate relation", func(t *testing.T) {
		authors, err := author.Query("books").
			ModifyQuery(orm.OrderBy("id")).
			Collect(ctx, db.DB())
		require.NoError(t, err)

		require.Len(t, authors, 2)
		require.Equal(t, 2, authors[0].Books.Len())
		require.Equal(t, 2, authors[1].Books.Len())
		for _, author := range authors {
			for _, book := range author.Books.Items() {
				require.NotEmpty(t, book.Name)
				require.Equal(t, author.ID, book.Author.ID())
				require.Same(t, author, book.Author.Get())
			}
		}
	})

	t.Run("nested relations", func(t *testing.T) {
		authors, err := author.Query("books.comments").
			Collect(ctx, db.DB())
		require.NoError(t, err)

		// Assert
		require.Len(t, authors, 2)
		for _, author := range authors {
			require.Equal(t, 2, author.Books.Len())
			for _, book := range author.Books.Items() {
				require.Equal(t, 1, book.Comments.Len())
				require.NotEmpty(t, book.Comments.Items()[0].Name)
			}
		}
	})

	t.Run("backref", func(t *testing.T) {
		books, err := book.Query("comments", "comments.book").
			Collect(ctx, db.DB())
		require.NoError(t, err)

		require.Len(t, books, 4)
		for _, book := range books {
			assert.Equal(t, book.ID, book.Comments.Items()[0].Book.Get().ID)
		}
	})

	t.Run("populate owning side", func(t *testing.T) {
		comments, err := comment.Query("book.author").
			Collect(ctx, db.DB())
		require.NoError(t, err)

		require.Len(t, comments, 4)
		for _, comment := range comments {
			require.True(t, comment.Book.IsInitialized())
			require.True(t, comment.Book.Get().Author.IsInitialized())
			assert.NotEmpty(t, comment.Book.Get().Author.Get().Name)
		}
	})

	t.Run("where restricts results", func(t *testing.T) {
		books, err := book.Query().
			Where(squirrel.Eq{"author_id": 2}).
			Collect(ctx, db.DB())
		require.NoError(t, err)

		require.Len(t, books, 2)
		for _, book := range books {
			assert.Equal(t, int64(2), book.Author.ID())
			assert.False(t, book.Author.IsInitialized())
		}
	})

	t.Run("unknown relation errors", func(t *testing.T) {
		_, err := author.Query("publisher").Collect(ctx, db.DB())
		assert.ErrorIs(t, err, orm.ErrNoSuchRelation)

		_, err = author.Query("books.publisher").Collect(ctx, db.DB())
		assert.ErrorIs(t, err, orm.ErrNoSuchRelation)
	})

	t.Run("CollectOne should return one item", func(t *testing.T) {
		author, err := author.Query().
			ModifyQuery(func(q orm.Q, table string) orm.Q { return q.Where("id = ?", 2) }).
			CollectOne(ctx, db.DB())
		require.NoError(t, err)
		assert.NotNil(t, author)
		assert.NotEmpty(t, author.ID)
		assert.NotEmpty(t, author.Name)
		assert.Zero(t, author.Books.Len())
	})

	t.Run("CollectOne should error on many returns", func(t *testing.T) {
		author, err := author.Query().
			CollectOne(ctx, db.DB())
		assert.ErrorIs(t, err, orm.ErrTooManyResults)
		assert.Nil(t, author)
	})

	t.Run("CollectOne should error on no returns", func(t *testing.T) {
		author, err := author.Query().
			ModifyQuery(func(q orm.Q, table string) orm.Q { return q.Where("false") }).
			CollectOne(ctx, db.DB())
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.Nil(t, author)
	})
}

func TestSchemaCheck(t *testing.T) {
	assert.NoError(t, author.Check(""))
	assert.NoError(t, author.Check("books"))
	assert.NoError(t, author.Check("books.comments.book"))
	assert.ErrorIs(t, author.Check("name"), orm.ErrNoSuchRelation)
	assert.ErrorIs(t, book.Check("author.comments"), orm.ErrNoSuchRelation)
}
