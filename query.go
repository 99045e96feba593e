package orm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/Masterminds/squirrel"
	"go.uber.org/zap"
)

// loader carries what a query and its relation resolvers need: the runner to
// query with and, for entity manager queries, the unit of work to merge into.
type loader struct {
	db  squirrel.BaseRunner
	uow *UnitOfWork
	log *zap.Logger
}

func newLoader(db squirrel.BaseRunner, uow *UnitOfWork) loader {
	lc := loader{db: db, uow: uow, log: zap.NewNop()}
	if r, ok := db.(*loggingRunner); ok {
		lc.log = r.log.log
	}
	if uow != nil {
		lc.log = uow.orm.log
	}

	return lc
}

type Query[T any] struct {
	schema *Schema[T]

	populate   map[string][]string
	tableAlias string
	queryMods  []QueryMod
	uow        *UnitOfWork

	errors []error
}

func newQuery[T any](schema *Schema[T], populate ...string) Query[T] {
	query := Query[T]{
		schema:     schema,
		populate:   map[string][]string{},
		tableAlias: schema.Table,
		queryMods:  []QueryMod{},
		errors:     []error{},
	}

	return query.Populate(populate...)
}

func (query Query[T]) ModifyQuery(mod QueryMod) Query[T] {
	query.queryMods = append(query.queryMods[:len(query.queryMods):len(query.queryMods)], mod)

	return query
}

// Where restricts the query by column equality, see squirrel.Eq.
func (query Query[T]) Where(eq squirrel.Eq) Query[T] {
	return query.ModifyQuery(Where(eq))
}

// Populate eagerly loads the named relations. Nested relations are separated
// by dots, "books.author" populates books and the author of every book.
func (query Query[T]) Populate(paths ...string) Query[T] {
	if len(paths) == 0 {
		return query
	}

	query.populate = maps.Clone(query.populate)
	for _, path := range paths {
		query.resolvePopulate(path)
	}

	return query
}

func (query *Query[T]) resolvePopulate(path string) {
	relation, rest := isNested(path)

	if !query.schema.hasRelation(relation) {
		query.addError(fmt.Errorf("%w: %s", ErrNoSuchRelation, relation))
		return
	}

	if rest != "" {
		// Validate the nested path against the target.
		if err := query.schema.Relations[relation].Check(rest); err != nil {
			query.addError(err)
			return
		}
	}

	nested := query.populate[relation]
	if rest != "" {
		nested = append(nested[:len(nested):len(nested)], rest)
	}
	query.populate[relation] = nested
}

// =================
// Finishers
// =================

func (query Query[T]) Err() error {
	return errors.Join(query.errors...)
}

func (query Query[T]) Collect(ctx context.Context, db squirrel.BaseRunner) ([]*T, error) {
	return query.collect(ctx, newLoader(db, query.uow))
}

func (query Query[T]) CollectOne(ctx context.Context, db squirrel.BaseRunner) (*T, error) {
	if err := query.Err(); err != nil {
		return nil, err
	}

	lc := newLoader(db, query.uow)
	parents, err := query.collectBaseModels(ctx, lc)
	if err != nil {
		return nil, err
	}

	if len(parents) == 0 {
		return nil, sql.ErrNoRows
	} else if len(parents) > 1 {
		return nil, ErrTooManyResults
	}

	if err := query.resolveRelations(ctx, lc, parents); err != nil {
		return nil, err
	}

	return parents[0], nil
}

func (query Query[T]) collect(ctx context.Context, lc loader) ([]*T, error) {
	if err := query.Err(); err != nil {
		return nil, err
	}

	parents, err := query.collectBaseModels(ctx, lc)
	if err != nil {
		return nil, err
	}

	if err := query.resolveRelations(ctx, lc, parents); err != nil {
		return nil, err
	}

	return parents, nil
}

func (query Query[T]) collectBaseModels(ctx context.Context, lc loader) ([]*T, error) {
	q := squirrel.StatementBuilder.RunWith(lc.db).Select().From(query.schema.Table)

	// Apply schema mods
	q = applyMods(q, query.tableAlias, query.schema.QueryMods)
	// Apply runtime mods
	q = applyMods(q, query.tableAlias, query.queryMods)

	// Collapse fields
	scans := make([]RowScan[T], 0, len(query.schema.Fields))
	for _, field := range query.schema.Fields {
		q = field.Mod(q, query.tableAlias)
		scans = append(scans, field.RowScan)
	}

	// Execute query
	parents, err := Collect(ctx, lc.log, q, flattenRowScan(scans))
	if err != nil {
		return nil, err
	}

	for ix, parent := range parents {
		query.schema.wire(parent, false)
		if lc.uow != nil {
			parents[ix] = lc.uow.merge(query.schema, parent).(*T)
		}
	}

	return parents, nil
}

func (query Query[T]) resolveRelations(ctx context.Context, lc loader, parents []*T) error {
	for name, nested := range query.populate {
		err := query.schema.Relations[name].resolve(ctx, lc, parents, nested)
		if err != nil {
			return err
		}
	}

	return nil
}

// =================
// Utilities
// =================

func (query *Query[T]) addError(err error) {
	query.errors = append(query.errors, err)
}

func isNested(name string) (string, string) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 1 {
		return name, ""
	}
	return parts[0], parts[1]
}
