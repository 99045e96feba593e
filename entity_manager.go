package orm

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
)

// EntityManager creates, loads and persists entities through its UnitOfWork.
// It is not safe for concurrent use; fork one per request.
type EntityManager struct {
	orm    *ORM
	uow    *UnitOfWork
	global bool
}

func (em *EntityManager) Fork() *EntityManager {
	return &EntityManager{orm: em.orm, uow: newUnitOfWork(em.orm)}
}

func (em *EntityManager) UnitOfWork() *UnitOfWork {
	return em.uow
}

// Persist schedules new entities for insertion. Entities that already carry a
// primary key become managed as they are.
func (em *EntityManager) Persist(entities ...any) error {
	if err := em.check(); err != nil {
		return err
	}

	for _, entity := range entities {
		schema, err := em.orm.schemaOf(entity)
		if err != nil {
			return err
		}
		em.uow.persist(schema, entity)
	}

	return nil
}

// Remove schedules managed entities for deletion. New entities are simply
// unscheduled.
func (em *EntityManager) Remove(entities ...any) error {
	if err := em.check(); err != nil {
		return err
	}

	for _, entity := range entities {
		if err := em.uow.remove(entity); err != nil {
			return err
		}
	}

	return nil
}

// Flush writes every pending change in a single transaction.
func (em *EntityManager) Flush(ctx context.Context) error {
	if err := em.check(); err != nil {
		return err
	}

	return em.uow.commit(ctx)
}

// Clear detaches every entity. Entities keep their state but are no longer
// tracked.
func (em *EntityManager) Clear() {
	em.uow.clear()
}

func (em *EntityManager) Contains(entity any) bool {
	return em.uow.Contains(entity)
}

func (em *EntityManager) check() error {
	if em.global && !em.orm.opts.AllowGlobalContext {
		return ErrGlobalContext
	}
	return nil
}

// Create hydrates a T from a plain object without querying the database.
// Relation values may be entities, primary keys, plain objects or lists of
// those. See Managed and Persist for how the result is registered.
func Create[T any](em *EntityManager, data Data, opts ...CreateOption) (*T, error) {
	if err := em.check(); err != nil {
		return nil, err
	}

	schema, err := schemaFor[T](em.orm)
	if err != nil {
		return nil, err
	}

	options := createOptions{managed: true}
	for _, opt := range opts {
		opt(&options)
	}

	h := &hydrator{
		uow:     em.uow,
		managed: options.managed,
		persist: em.orm.opts.PersistOnCreate,
	}
	if options.persist != nil {
		h.persist = *options.persist
	}

	entity, err := h.hydrate(schema, data)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", schema.EntityName(), err)
	}
	h.finish()

	return entity.(*T), nil
}

// Find loads the entities matching where and merges them into the identity map.
func Find[T any](ctx context.Context, em *EntityManager, where squirrel.Eq, populate ...string) ([]*T, error) {
	query, err := managedQuery[T](em, where, populate)
	if err != nil {
		return nil, err
	}

	return query.Collect(ctx, em.orm.runner(em.orm.db))
}

// FindOne is Find for exactly one result. It returns sql.ErrNoRows or
// ErrTooManyResults otherwise.
func FindOne[T any](ctx context.Context, em *EntityManager, where squirrel.Eq, populate ...string) (*T, error) {
	query, err := managedQuery[T](em, where, populate)
	if err != nil {
		return nil, err
	}

	return query.CollectOne(ctx, em.orm.runner(em.orm.db))
}

// FindByID returns the managed instance with the given primary key, querying
// only when it is not in the identity map or relations must be populated.
func FindByID[T any](ctx context.Context, em *EntityManager, id int64, populate ...string) (*T, error) {
	if err := em.check(); err != nil {
		return nil, err
	}

	schema, err := schemaFor[T](em.orm)
	if err != nil {
		return nil, err
	}

	if len(populate) == 0 {
		if entity, ok := em.uow.lookup(entityKey{table: schema.Table, id: id}); ok {
			return entity.(*T), nil
		}
	}

	return FindOne[T](ctx, em, squirrel.Eq{schema.pkColumn(): id}, populate...)
}

func managedQuery[T any](em *EntityManager, where squirrel.Eq, populate []string) (Query[T], error) {
	if err := em.check(); err != nil {
		return Query[T]{}, err
	}

	schema, err := schemaFor[T](em.orm)
	if err != nil {
		return Query[T]{}, err
	}

	query := schema.Query(populate...)
	if len(where) > 0 {
		query = query.Where(where)
	}
	query.uow = em.uow

	return query, nil
}
