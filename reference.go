package orm

import (
	"context"
	"slices"

	"github.com/samber/lo"
)

// Ref is the owning side of a many-to-one relation. It always knows the
// primary key of the referenced entity and holds the entity itself once it is
// populated or loaded.
type Ref[T any] struct {
	id     int64
	entity *T
	schema *Schema[T]
}

// RefTo returns a reference holding entity.
func RefTo[T any](entity *T) Ref[T] {
	return Ref[T]{entity: entity}
}

// ID returns the referenced primary key. It reads through to the entity when
// one is held, so it reflects keys assigned during flush.
func (r *Ref[T]) ID() int64 {
	if r.entity != nil && r.schema != nil {
		return r.schema.idOf(r.entity)
	}
	return r.id
}

// Get returns the referenced entity or nil when it is not loaded.
func (r *Ref[T]) Get() *T {
	return r.entity
}

// Set points the reference at entity. It does not update the inverse
// collection; use the collection's Add for that.
func (r *Ref[T]) Set(entity *T) {
	r.entity = entity
	r.id = 0
	if entity != nil && r.schema != nil {
		r.id = r.schema.idOf(entity)
	}
}

func (r *Ref[T]) IsEmpty() bool {
	return r.entity == nil && r.id == 0
}

// IsInitialized reports whether the referenced entity is held in memory.
func (r *Ref[T]) IsInitialized() bool {
	return r.entity != nil
}

// Load returns the referenced entity, querying it through em when it is not
// held yet.
func (r *Ref[T]) Load(ctx context.Context, em *EntityManager) (*T, error) {
	if r.entity != nil || r.id == 0 {
		return r.entity, nil
	}

	entity, err := FindByID[T](ctx, em, r.id)
	if err != nil {
		return nil, err
	}
	r.entity = entity

	return entity, nil
}

// Collection is the inverse side of a one-to-many relation. Collections of new
// and hydrated entities start initialized; collections of loaded entities stay
// uninitialized until populated or Init is called.
type Collection[T any] struct {
	items       []*T
	initialized bool

	link   func(child *T)
	unlink func(child *T)
	load   func(ctx context.Context, em *EntityManager) ([]*T, error)
}

// Add appends items and points their owning reference at the collection owner.
func (c *Collection[T]) Add(items ...*T) {
	for _, item := range items {
		if item == nil {
			continue
		}
		if !c.Contains(item) {
			c.items = append(c.items, item)
		}
		if c.link != nil {
			c.link(item)
		}
	}
}

// Remove drops items and clears their owning reference.
func (c *Collection[T]) Remove(items ...*T) {
	c.items = lo.Without(c.items, items...)
	if c.unlink == nil {
		return
	}
	for _, item := range items {
		c.unlink(item)
	}
}

func (c *Collection[T]) Items() []*T {
	return slices.Clone(c.items)
}

func (c *Collection[T]) Len() int {
	return len(c.items)
}

func (c *Collection[T]) Contains(item *T) bool {
	return lo.Contains(c.items, item)
}

func (c *Collection[T]) IsInitialized() bool {
	return c.initialized
}

// Init loads the collection through em. Items added before loading are kept.
func (c *Collection[T]) Init(ctx context.Context, em *EntityManager) error {
	if c.initialized {
		return nil
	}

	if c.load != nil {
		loaded, err := c.load(ctx, em)
		if err != nil {
			return err
		}
		c.items = lo.Uniq(append(loaded, c.items...))
		if c.link != nil {
			for _, item := range loaded {
				c.link(item)
			}
		}
	}
	c.initialized = true

	return nil
}

// set replaces the items without touching the owning side, used when binding
// query results.
func (c *Collection[T]) set(items []*T) {
	c.items = items
	c.initialized = true
}
