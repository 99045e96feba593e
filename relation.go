package orm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"
	"github.com/samber/lo"
)

type (
	FieldCheck       func(fields string) error
	Binder[M, N any] func(parents []*M, children []*N)

	resolver[M any] func(ctx context.Context, lc loader, parents []*M, populate []string) error
)

// Relation connects entities of type M to entities of another schema. It is
// created by BelongsTo or HasMany and registered with Schema.AddRelation.
type Relation[M any] struct {
	*relationInfo
	Check FieldCheck

	fk        *FieldType[M]
	resolve   resolver[M]
	wire      func(m *M, isNew bool)
	assign    func(h *hydrator, m *M, value any) error
	serialize func(s *serializer, m *M) (any, bool)
	reachable func(m *M) []any
	link      func(m *M, child any)

	// owning side accessors, used by the inverse collection
	refID      func(m *M) int64
	setOwner   func(m *M, owner any)
	clearOwner func(m *M, owner any)
}

// BelongsTo declares the owning side of a many-to-one relation: M stores the
// primary key of an N in column.
func BelongsTo[M, N any](target *Schema[N], column string, ref func(*M) *Ref[N]) Relation[M] {
	info := &relationInfo{kind: ManyToOne, target: target, column: column}

	setRef := func(m *M, entity *N) {
		r := ref(m)
		r.schema = target
		r.Set(entity)
		target.linkInverse(entity, info.owner, info.name, m)
	}

	return Relation[M]{
		relationInfo: info,
		Check: func(field string) error {
			return target.Check(field)
		},
		fk: &FieldType[M]{
			Column: column,
			Mod:    Col(column),
			RowScan: func(m *M) (Ptrs, Action) {
				var id sql.NullInt64
				return Ptrs{&id}, func() {
					*ref(m) = Ref[N]{id: id.Int64, schema: target}
				}
			},
			Value: func(m *M) any {
				if id := ref(m).ID(); id != 0 {
					return id
				}
				return nil
			},
			goType:     reflect.TypeFor[int64](),
			nullable:   true,
			references: target,
		},
		resolve: func(ctx context.Context, lc loader, parents []*M, populate []string) error {
			ids := lo.Uniq(lo.FilterMap(parents, func(m *M, _ int) (int64, bool) {
				id := ref(m).ID()
				return id, id != 0
			}))
			if len(ids) == 0 {
				return nil
			}

			children, err := target.Query(populate...).
				Where(squirrel.Eq{target.pkColumn(): ids}).
				collect(ctx, lc)
			if err != nil {
				return err
			}

			BindByOne(
				func(m *M, n *N) bool { return ref(m).ID() == target.idOf(n) },
				func(m *M, n *N) { ref(m).entity = n },
			)(parents, children)

			return nil
		},
		wire: func(m *M, _ bool) {
			ref(m).schema = target
		},
		assign: func(h *hydrator, m *M, value any) error {
			switch v := value.(type) {
			case nil:
				*ref(m) = Ref[N]{schema: target}
			case *N:
				setRef(m, v)
			case Ref[N]:
				if v.entity != nil {
					setRef(m, v.entity)
					return nil
				}
				*ref(m) = Ref[N]{id: v.id, schema: target}
			case Data:
				child, err := h.hydrate(target, v)
				if err != nil {
					return err
				}
				setRef(m, child.(*N))
			default:
				id, err := toInt64(value)
				if err != nil {
					return fmt.Errorf("%w: %w", ErrInvalidValue, err)
				}
				if entity, ok := h.lookup(target, id); ok {
					setRef(m, entity.(*N))
					return nil
				}
				*ref(m) = Ref[N]{id: id, schema: target}
			}

			return nil
		},
		serialize: func(s *serializer, m *M) (any, bool) {
			r := ref(m)
			switch {
			case r.IsEmpty():
				return nil, true
			case !s.pojo:
				return r.ID(), true
			case r.entity != nil && !s.visited(r.entity):
				return target.serialize(s, r.entity), true
			default:
				return Data{target.pkName(): r.ID()}, true
			}
		},
		reachable: func(m *M) []any {
			if entity := ref(m).entity; entity != nil {
				return []any{entity}
			}
			return nil
		},
		link: func(*M, any) {},
		refID: func(m *M) int64 {
			return ref(m).ID()
		},
		setOwner: func(m *M, owner any) {
			r := ref(m)
			r.schema = target
			r.Set(owner.(*N))
		},
		clearOwner: func(m *M, owner any) {
			r := ref(m)
			if r.entity == owner.(*N) || (r.entity == nil && r.id == target.idOf(owner)) {
				*r = Ref[N]{schema: target}
			}
		},
	}
}

// HasMany declares the inverse side of a one-to-many relation: the N entities
// whose mappedBy relation points at M.
func HasMany[M, N any](target *Schema[N], mappedBy string, collection func(*M) *Collection[N]) Relation[M] {
	info := &relationInfo{kind: OneToMany, target: target, mappedBy: mappedBy}

	inverse := func() Relation[N] {
		return target.Relations[mappedBy]
	}
	ownerID := func(m *M) int64 {
		return info.owner.idOf(m)
	}

	return Relation[M]{
		relationInfo: info,
		Check: func(field string) error {
			return target.Check(field)
		},
		resolve: func(ctx context.Context, lc loader, parents []*M, populate []string) error {
			inv := inverse()
			children, err := target.Query(populate...).
				ModifyQuery(WhereIDs(inv.column, ownerID)(parents)).
				collect(ctx, lc)
			if err != nil {
				return err
			}

			BindBy(
				func(m *M, n *N) bool { return inv.refID(n) == ownerID(m) },
				func(m *M, children []*N) {
					c := collection(m)
					c.set(lo.Uniq(append(children, c.items...)))
					for _, child := range children {
						inv.setOwner(child, m)
					}
				},
			)(parents, children)

			return nil
		},
		wire: func(m *M, isNew bool) {
			c := collection(m)
			c.link = func(n *N) { inverse().setOwner(n, m) }
			c.unlink = func(n *N) { inverse().clearOwner(n, m) }
			for _, n := range c.items {
				c.link(n)
			}
			c.load = func(ctx context.Context, em *EntityManager) ([]*N, error) {
				id := ownerID(m)
				if id == 0 {
					return nil, nil
				}
				return Find[N](ctx, em, squirrel.Eq{inverse().column: id})
			}
			if isNew {
				c.initialized = true
			}
		},
		assign: func(h *hydrator, m *M, value any) error {
			items, err := toItems(value)
			if err != nil {
				return err
			}

			c := collection(m)
			c.initialized = true
			for _, item := range items {
				switch v := item.(type) {
				case *N:
					c.Add(v)
				case Data:
					child, err := h.hydrate(target, v)
					if err != nil {
						return err
					}
					c.Add(child.(*N))
				default:
					id, err := toInt64(item)
					if err != nil {
						return fmt.Errorf("%w: %w", ErrInvalidValue, err)
					}
					if entity, ok := h.lookup(target, id); ok {
						c.Add(entity.(*N))
						continue
					}
					stub := new(N)
					target.wire(stub, false)
					target.setID(stub, id)
					c.Add(stub)
				}
			}

			return nil
		},
		serialize: func(s *serializer, m *M) (any, bool) {
			c := collection(m)
			if !c.initialized {
				return nil, false
			}

			items := make([]any, 0, c.Len())
			for _, child := range c.items {
				switch {
				case !s.visited(child):
					items = append(items, target.serialize(s, child))
				case s.pojo:
					items = append(items, Data{target.pkName(): target.idOf(child)})
				default:
					items = append(items, target.idOf(child))
				}
			}

			return items, true
		},
		reachable: func(m *M) []any {
			return lo.Map(collection(m).items, func(n *N, _ int) any { return n })
		},
		link: func(m *M, child any) {
			c := collection(m)
			if n := child.(*N); c.initialized && !c.Contains(n) {
				c.items = append(c.items, n)
			}
		},
	}
}

func BindBy[M, N any](
	belongTogether func(*M, *N) bool,
	assign func(*M, []*N),
) Binder[M, N] {
	return func(parents []*M, children []*N) {
		for _, parent := range parents {
			var collection []*N

			for _, child := range children {
				if !belongTogether(parent, child) {
					continue
				}

				collection = append(collection, child)
			}

			assign(parent, collection)
		}
	}
}

func BindByOne[M, N any](
	belongTogether func(*M, *N) bool,
	assign func(*M, *N),
) Binder[M, N] {
	return func(parents []*M, children []*N) {
		for _, parent := range parents {
			for _, child := range children {
				if !belongTogether(parent, child) {
					continue
				}

				assign(parent, child)
				break
			}
		}
	}
}

func WhereIDs[M any, K comparable](col string, getID func(m *M) K) func(parents []*M) QueryMod {
	return func(parents []*M) QueryMod {
		return func(q Q, table string) Q {
			return q.Where(
				squirrel.Eq{
					TableCol(table, col): lo.Uniq(lo.Map(
						parents,
						func(parent *M, _ int) K { return getID(parent) },
					)),
				},
			)
		}
	}
}

func toItems(value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}

	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: expected a list, got %T", ErrInvalidValue, value)
	}

	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}

	return items, nil
}
