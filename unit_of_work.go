package orm

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type ChangeSetType int

const (
	ChangeSetCreate ChangeSetType = iota
	ChangeSetUpdate
	ChangeSetDelete
)

func (t ChangeSetType) String() string {
	switch t {
	case ChangeSetCreate:
		return "create"
	case ChangeSetUpdate:
		return "update"
	case ChangeSetDelete:
		return "delete"
	default:
		return fmt.Sprintf("ChangeSetType(%d)", int(t))
	}
}

// ChangeSet is one pending write. Payload holds column values: every column
// for creates and only the changed ones for updates.
type ChangeSet struct {
	Type    ChangeSetType
	Name    string
	Table   string
	Entity  any
	Payload Data

	schema EntitySchema
	undo   func()
}

type managedEntity struct {
	schema   EntitySchema
	entity   any
	snapshot Data
}

func (m *managedEntity) changes() Data {
	changes := Data{}
	for column, value := range m.schema.values(m.entity) {
		if !sameValue(value, m.snapshot[column]) {
			changes[column] = value
		}
	}

	return changes
}

// UnitOfWork tracks the entities of one EntityManager: the identity map of
// managed entities with their snapshots, the new entities scheduled for
// insertion and the entities scheduled for removal.
type UnitOfWork struct {
	orm *ORM

	identityMap  map[entityKey]*managedEntity
	tracked      map[any]*managedEntity
	persistStack []hydrated
	scheduled    map[any]struct{}
	removeStack  []*managedEntity
	removed      map[any]struct{}

	changeSets []*ChangeSet
}

func newUnitOfWork(orm *ORM) *UnitOfWork {
	uow := &UnitOfWork{orm: orm}
	uow.clear()

	return uow
}

func (uow *UnitOfWork) clear() {
	uow.identityMap = map[entityKey]*managedEntity{}
	uow.tracked = map[any]*managedEntity{}
	uow.persistStack = nil
	uow.scheduled = map[any]struct{}{}
	uow.removeStack = nil
	uow.removed = map[any]struct{}{}
	uow.changeSets = nil
}

// Contains reports whether entity is managed or scheduled for insertion.
func (uow *UnitOfWork) Contains(entity any) bool {
	if _, ok := uow.tracked[entity]; ok {
		return true
	}
	_, ok := uow.scheduled[entity]
	return ok
}

// Len returns the number of entities in the identity map.
func (uow *UnitOfWork) Len() int {
	return len(uow.identityMap)
}

// ChangeSets returns the change sets of the last ComputeChangeSets call.
func (uow *UnitOfWork) ChangeSets() []*ChangeSet {
	return slices.Clone(uow.changeSets)
}

// ComputeChangeSets cascades persist to new entities reachable from tracked
// ones and diffs every managed entity against its snapshot.
func (uow *UnitOfWork) ComputeChangeSets() {
	uow.cascadePersist()

	var creates, updates, deletes []*ChangeSet
	for _, e := range uow.persistStack {
		creates = append(creates, newChangeSet(ChangeSetCreate, e.schema, e.entity, e.schema.values(e.entity)))
	}

	keys := lo.Keys(uow.identityMap)
	slices.SortFunc(keys, func(a, b entityKey) int {
		return cmp.Or(cmp.Compare(a.table, b.table), cmp.Compare(a.id, b.id))
	})
	for _, key := range keys {
		m := uow.identityMap[key]
		if _, ok := uow.removed[m.entity]; ok {
			continue
		}
		if changes := m.changes(); len(changes) > 0 {
			updates = append(updates, newChangeSet(ChangeSetUpdate, m.schema, m.entity, changes))
		}
	}

	for _, m := range uow.removeStack {
		deletes = append(deletes, newChangeSet(ChangeSetDelete, m.schema, m.entity, nil))
	}

	// Parents are inserted before the children referencing them and deleted after.
	slices.SortStableFunc(creates, func(a, b *ChangeSet) int {
		return cmp.Compare(uow.orm.rank(a.schema), uow.orm.rank(b.schema))
	})
	slices.SortStableFunc(deletes, func(a, b *ChangeSet) int {
		return cmp.Compare(uow.orm.rank(b.schema), uow.orm.rank(a.schema))
	})

	uow.changeSets = slices.Concat(creates, updates, deletes)
}

func newChangeSet(typ ChangeSetType, schema EntitySchema, entity any, payload Data) *ChangeSet {
	return &ChangeSet{
		Type:    typ,
		Name:    schema.EntityName(),
		Table:   schema.TableName(),
		Entity:  entity,
		Payload: payload,
		schema:  schema,
	}
}

func (uow *UnitOfWork) cascadePersist() {
	queue := lo.Map(uow.persistStack, func(e hydrated, _ int) any { return e.entity })
	queue = append(queue, lo.Keys(uow.tracked)...)

	seen := map[any]struct{}{}
	for len(queue) > 0 {
		entity := queue[0]
		queue = queue[1:]
		if _, ok := seen[entity]; ok {
			continue
		}
		seen[entity] = struct{}{}

		schema, err := uow.orm.schemaOf(entity)
		if err != nil {
			continue
		}

		for _, related := range schema.reachable(entity) {
			if _, ok := uow.removed[related]; ok || uow.Contains(related) {
				continue
			}
			relatedSchema, err := uow.orm.schemaOf(related)
			if err != nil || relatedSchema.idOf(related) != 0 {
				continue
			}
			uow.persist(relatedSchema, related)
			queue = append(queue, related)
		}
	}
}

func (uow *UnitOfWork) lookup(key entityKey) (any, bool) {
	if m, ok := uow.identityMap[key]; ok {
		return m.entity, true
	}
	return nil, false
}

// register makes entity managed with a snapshot of its current state.
func (uow *UnitOfWork) register(schema EntitySchema, entity any) {
	key := keyOf(schema, entity)
	if previous, ok := uow.identityMap[key]; ok && previous.entity != entity {
		delete(uow.tracked, previous.entity)
	}

	m := &managedEntity{schema: schema, entity: entity, snapshot: schema.values(entity)}
	uow.identityMap[key] = m
	uow.tracked[entity] = m
}

// merge registers entity unless an instance with the same identity is already
// managed, in which case that instance is returned.
func (uow *UnitOfWork) merge(schema EntitySchema, entity any) any {
	if existing, ok := uow.lookup(keyOf(schema, entity)); ok {
		return existing
	}
	uow.register(schema, entity)

	return entity
}

func (uow *UnitOfWork) unregister(entity any) {
	m, ok := uow.tracked[entity]
	if !ok {
		return
	}
	delete(uow.tracked, entity)
	delete(uow.identityMap, keyOf(m.schema, entity))
}

func (uow *UnitOfWork) persist(schema EntitySchema, entity any) {
	if uow.Contains(entity) {
		return
	}
	delete(uow.removed, entity)

	isNew := schema.idOf(entity) == 0
	schema.wire(entity, isNew)
	if !isNew {
		uow.register(schema, entity)
		return
	}

	uow.persistStack = append(uow.persistStack, hydrated{schema: schema, entity: entity})
	uow.scheduled[entity] = struct{}{}
}

func (uow *UnitOfWork) remove(entity any) error {
	if _, ok := uow.scheduled[entity]; ok {
		delete(uow.scheduled, entity)
		uow.persistStack = lo.Reject(uow.persistStack, func(e hydrated, _ int) bool { return e.entity == entity })
		return nil
	}

	m, ok := uow.tracked[entity]
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotManaged, entity)
	}
	if _, ok := uow.removed[entity]; !ok {
		uow.removed[entity] = struct{}{}
		uow.removeStack = append(uow.removeStack, m)
	}

	return nil
}

// commit computes the change sets and executes them in one transaction.
func (uow *UnitOfWork) commit(ctx context.Context) error {
	uow.ComputeChangeSets()
	if len(uow.changeSets) == 0 {
		return nil
	}

	tx, err := uow.orm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("flush: begin transaction: %w", err)
	}

	runner := uow.orm.runner(tx)
	at := now(ctx)
	for _, cs := range uow.changeSets {
		if err := uow.execute(ctx, runner, cs, at); err != nil {
			uow.rollback(tx)
			return fmt.Errorf("flush: %s %s: %w", cs.Type, cs.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		uow.rollback(tx)
		return fmt.Errorf("flush: commit: %w", err)
	}

	uow.orm.log.Debug("flushed", zap.Int("changeSets", len(uow.changeSets)))
	uow.afterCommit()

	return nil
}

func (uow *UnitOfWork) execute(ctx context.Context, runner squirrel.BaseRunner, cs *ChangeSet, at time.Time) error {
	schema := cs.schema
	switch cs.Type {
	case ChangeSetCreate:
		cs.undo = schema.touch(cs.Entity, at, OnCreate)
		cs.Payload = schema.values(cs.Entity)
		columns := lo.Keys(cs.Payload)
		slices.Sort(columns)

		res, err := squirrel.Insert(cs.Table).
			Columns(columns...).
			Values(lo.Map(columns, func(column string, _ int) any { return cs.Payload[column] })...).
			RunWith(runner).
			ExecContext(ctx)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		schema.setID(cs.Entity, id)

	case ChangeSetUpdate:
		cs.undo = schema.touch(cs.Entity, at, OnUpdate)
		cs.Payload = uow.tracked[cs.Entity].changes()

		_, err := squirrel.Update(cs.Table).
			SetMap(cs.Payload).
			Where(squirrel.Eq{schema.pkColumn(): schema.idOf(cs.Entity)}).
			RunWith(runner).
			ExecContext(ctx)
		if err != nil {
			return err
		}

	case ChangeSetDelete:
		_, err := squirrel.Delete(cs.Table).
			Where(squirrel.Eq{schema.pkColumn(): schema.idOf(cs.Entity)}).
			RunWith(runner).
			ExecContext(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

func (uow *UnitOfWork) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		uow.orm.log.Error("flush: rollback failed", zap.Error(err))
	}

	// Keys and timestamps written by the aborted statements do not exist.
	for _, cs := range uow.changeSets {
		if cs.undo != nil {
			cs.undo()
			cs.undo = nil
		}
		if cs.Type == ChangeSetCreate {
			cs.schema.setID(cs.Entity, 0)
		}
	}
}

func (uow *UnitOfWork) afterCommit() {
	for _, cs := range uow.changeSets {
		switch cs.Type {
		case ChangeSetCreate, ChangeSetUpdate:
			uow.register(cs.schema, cs.Entity)
		case ChangeSetDelete:
			uow.unregister(cs.Entity)
		}
	}

	uow.persistStack = nil
	uow.scheduled = map[any]struct{}{}
	uow.removeStack = nil
	uow.removed = map[any]struct{}{}
	uow.changeSets = nil
}
