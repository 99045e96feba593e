package orm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pollex.nl/orm"
)

type Author struct {
	ID    int64
	Name  string
	Tags  []string
	Books orm.Collection[Book]
}

type Book struct {
	ID       int64
	Name     string
	Author   orm.Ref[Author]
	Comments orm.Collection[Comment]
}

type Comment struct {
	ID   int64
	Name string
	Book orm.Ref[Book]
}

var (
	comment = orm.New[Comment]("book_comments").
		PrimaryKey("id", func(t *Comment) *int64 { return &t.ID }).
		AddSimpleField("name", func(t *Comment) any { return &t.Name })

	book = orm.New[Book]("").
		PrimaryKey("id", func(t *Book) *int64 { return &t.ID }).
		AddSimpleField("name", func(t *Book) any { return &t.Name })

	author = orm.New[Author]("").
		PrimaryKey("id", func(t *Author) *int64 { return &t.ID }).
		AddSimpleField("name", func(t *Author) any { return &t.Name }).
		AddFieldType(orm.FieldType[Author]{
			Name:   "tags",
			Column: "tags",
			Mod:    orm.Col("tags"),
			RowScan: func(t *Author) (orm.Ptrs, orm.Action) {
				var tagString string
				return orm.Ptrs{&tagString}, func() {
					t.Tags = strings.Split(tagString, ",")
				}
			},
			Value: func(t *Author) any {
				return strings.Join(t.Tags, ",")
			},
			Assign: func(t *Author, value any) error {
				tags, ok := value.([]string)
				if !ok {
					return errors.New("tags must be a []string")
				}
				t.Tags = tags
				return nil
			},
		})
)

func init() {
	author.AddRelation("books",
		orm.HasMany(book, "author", func(a *Author) *orm.Collection[Book] { return &a.Books }),
	)
	book.
		AddRelation("author",
			orm.BelongsTo(author, "author_id", func(b *Book) *orm.Ref[Author] { return &b.Author }),
		).
		AddRelation("comments",
			orm.HasMany(comment, "book", func(b *Book) *orm.Collection[Comment] { return &b.Comments }),
		)
	comment.AddRelation("book",
		orm.BelongsTo(book, "book_id", func(c *Comment) *orm.Ref[Book] { return &c.Book }),
	)
}

func entities() []orm.EntitySchema {
	return []orm.EntitySchema{comment, book, author}
}

func setupORM(t testing.TB, configure ...func(*orm.Options)) *orm.ORM {
	t.Helper()
	ctx := context.Background()

	opts := orm.Options{
		DBName:             ":memory:",
		Entities:           entities(),
		Debug:              []orm.DebugFlag{orm.DebugQuery, orm.DebugQueryParams},
		Logger:             zaptest.NewLogger(t),
		PersistOnCreate:    true,
		AllowGlobalContext: true,
	}
	for _, fn := range configure {
		fn(&opts)
	}

	db, err := orm.Init(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	require.NoError(t, db.Schema().RefreshDatabase(ctx))

	return db
}

//nolint:errcheck
func seed(t testing.TB, db *orm.ORM) {
	t.Helper()

	sq := squirrel.StatementBuilder.RunWith(db.DB())
	sq.Insert("authors").Columns("id", "name", "tags").
		Values(1, "Jeff", "cool,awesome").
		Values(2, "Madonna", "vocal").Exec()
	sq.Insert("books").Columns("id", "name", "author_id").
		Values(1, "Life of Jeff", 1).
		Values(2, "Cooking like Jeff", 1).
		Values(3, "Sing baby sing", 2).
		Values(4, "the singeth hath endeth", 2).Exec()
	sq.Insert("book_comments").Columns("id", "name", "book_id").
		Values(1, "Great book!", 1).
		Values(2, "Very insightful", 2).
		Values(3, "A masterpiece", 3).
		Values(4, "Could be better", 4).Exec()
}
