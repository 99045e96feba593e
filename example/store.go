package example

import (
	"context"

	"pollex.nl/orm"
)

type Store struct {
	orm *orm.ORM
}

func NewStore(db *orm.ORM) *Store {
	return &Store{orm: db}
}

type Opts struct {
	Expands []string
}

func (store *Store) ListAuthors(ctx context.Context, opts Opts) ([]*Author, error) {
	// Every call works on its own fork, like a request context.
	return orm.Find[Author](ctx, store.orm.Fork(), nil, opts.Expands...)
}

// CreateAuthor inserts an author together with one book per title.
func (store *Store) CreateAuthor(ctx context.Context, name string, titles ...string) (*Author, error) {
	em := store.orm.Fork()

	author, err := orm.Create[Author](em, orm.Data{"name": name}, orm.Persist(true))
	if err != nil {
		return nil, err
	}
	for _, title := range titles {
		if _, err := orm.Create[Book](em, orm.Data{"title": title, "author": author}, orm.Persist(true)); err != nil {
			return nil, err
		}
	}

	if err := em.Flush(ctx); err != nil {
		return nil, err
	}

	return author, nil
}

// RenameAuthor loads the author, changes its name and flushes.
func (store *Store) RenameAuthor(ctx context.Context, id int64, name string) (*Author, error) {
	em := store.orm.Fork()

	author, err := orm.FindByID[Author](ctx, em, id)
	if err != nil {
		return nil, err
	}
	author.Name = name

	if err := em.Flush(ctx); err != nil {
		return nil, err
	}

	return author, nil
}

// Restore rebuilds an author from a snapshot taken with AuthorSchema.ToJSON
// without querying the database. The result is not tracked by em.
func (store *Store) Restore(em *orm.EntityManager, snapshot orm.Data) (*Author, error) {
	return orm.Create[Author](em, snapshot, orm.Managed(false), orm.Persist(false))
}
