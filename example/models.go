package example

import (
	"time"

	"pollex.nl/orm"
)

var AuthorSchema = withBase(orm.New[Author](""), func(a *Author) *Base { return &a.Base }).
	AddSimpleField("name", func(t *Author) any { return &t.Name })

var BookSchema = withBase(orm.New[Book](""), func(b *Book) *Base { return &b.Base }).
	AddSimpleField("title", func(t *Book) any { return &t.Title })

func init() {
	AuthorSchema.AddRelation("books",
		orm.HasMany(BookSchema, "author", func(a *Author) *orm.Collection[Book] { return &a.Books }),
	)
	BookSchema.AddRelation("author",
		orm.BelongsTo(AuthorSchema, "author_id", func(b *Book) *orm.Ref[Author] { return &b.Author }),
	)
}

// Entities returns the schemas to register with orm.Init.
func Entities() []orm.EntitySchema {
	return []orm.EntitySchema{AuthorSchema, BookSchema}
}

func withBase[T any](schema *orm.Schema[T], base func(*T) *Base) *orm.Schema[T] {
	return schema.
		PrimaryKey("id", func(t *T) *int64 { return &base(t).ID }).
		AddTimestamp("updatedAt", func(t *T) *time.Time { return &base(t).UpdatedAt }, orm.OnCreate|orm.OnUpdate).
		AddTimestamp("createdAt", func(t *T) *time.Time { return &base(t).CreatedAt }, orm.OnCreate)
}
