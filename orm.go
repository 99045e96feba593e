package orm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"
	"github.com/samber/lo"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// ORM owns the database handle, the registered schemas and the global
// EntityManager.
type ORM struct {
	db      *sql.DB
	ownsDB  bool
	opts    Options
	log     *zap.Logger
	queries queryLogger

	// schemas are ordered so that every schema comes after the schemas it references.
	schemas  []EntitySchema
	registry map[reflect.Type]EntitySchema
	ranks    map[EntitySchema]int

	em *EntityManager
}

// Init validates the registered entities and opens the database.
func Init(ctx context.Context, opts Options) (*ORM, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	schemas, err := sortSchemas(opts.Entities)
	if err != nil {
		return nil, err
	}

	db, ownsDB := opts.DB, false
	if db == nil {
		db, err = sql.Open("sqlite3", opts.dsn())
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", opts.dsn(), err)
		}
		ownsDB = true

		// Every connection to :memory: is a separate database.
		if opts.inMemory() {
			db.SetMaxOpenConns(1)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		if ownsDB {
			_ = db.Close()
		}
		return nil, fmt.Errorf("ping: %w", err)
	}

	orm := &ORM{
		db:       db,
		ownsDB:   ownsDB,
		opts:     opts,
		log:      log,
		queries:  newQueryLogger(log, opts.Debug),
		schemas:  schemas,
		registry: map[reflect.Type]EntitySchema{},
		ranks:    map[EntitySchema]int{},
	}
	for ix, schema := range schemas {
		orm.registry[schema.entityType()] = schema
		orm.ranks[schema] = ix
	}
	orm.em = &EntityManager{orm: orm, uow: newUnitOfWork(orm), global: true}

	log.Info("orm initialized",
		zap.String("db", lo.Ternary(opts.inMemory(), memoryDB, opts.DBName)),
		zap.Strings("entities", lo.Map(schemas, func(s EntitySchema, _ int) string { return s.EntityName() })),
	)

	return orm, nil
}

// EM returns the global entity manager. Unless AllowGlobalContext is set it
// rejects every operation, use Fork for a request scoped one.
func (orm *ORM) EM() *EntityManager {
	return orm.em
}

// Fork returns a new entity manager with an empty identity map.
func (orm *ORM) Fork() *EntityManager {
	return orm.em.Fork()
}

func (orm *ORM) DB() *sql.DB {
	return orm.db
}

func (orm *ORM) Schema() *SchemaGenerator {
	return &SchemaGenerator{orm: orm}
}

// Close closes the database unless it was provided through Options.DB.
func (orm *ORM) Close() error {
	orm.log.Info("orm closing")
	if !orm.ownsDB {
		return nil
	}
	return orm.db.Close()
}

func (orm *ORM) runner(conn squirrel.StdSqlCtx) *loggingRunner {
	return &loggingRunner{runner: conn, log: orm.queries}
}

func (orm *ORM) rank(schema EntitySchema) int {
	return orm.ranks[schema]
}

func (orm *ORM) schemaOf(entity any) (EntitySchema, error) {
	schema, ok := orm.registry[reflect.TypeOf(entity)]
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownEntity, entity)
	}
	return schema, nil
}

func schemaFor[T any](orm *ORM) (*Schema[T], error) {
	schema, ok := orm.registry[reflect.TypeFor[*T]()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, reflect.TypeFor[T]())
	}
	return schema.(*Schema[T]), nil
}

// sortSchemas validates the entity list and orders it so referenced schemas
// come first.
func sortSchemas(entities []EntitySchema) ([]EntitySchema, error) {
	if len(entities) == 0 {
		return nil, ErrNoEntities
	}

	types := map[reflect.Type]bool{}
	tables := map[string]bool{}
	for _, schema := range entities {
		if types[schema.entityType()] || tables[schema.TableName()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, schema.EntityName())
		}
		types[schema.entityType()] = true
		tables[schema.TableName()] = true
	}

	for _, schema := range entities {
		if !lo.ContainsBy(schema.columns(), func(c columnDef) bool { return c.primary }) {
			return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, schema.EntityName())
		}
		for _, rel := range schema.relationInfos() {
			if !types[rel.target.entityType()] {
				return nil, fmt.Errorf("%w: %s.%s targets %s", ErrUnknownEntity, schema.EntityName(), rel.name, rel.target.EntityName())
			}
			if rel.kind == OneToMany && !hasOwningSide(schema, rel) {
				return nil, fmt.Errorf("%w: %s.%s is mapped by %s.%s", ErrNoSuchRelation, schema.EntityName(), rel.name, rel.target.EntityName(), rel.mappedBy)
			}
		}
	}

	var (
		sorted   []EntitySchema
		visiting = map[EntitySchema]bool{}
		done     = map[EntitySchema]bool{}
		visit    func(schema EntitySchema)
	)
	visit = func(schema EntitySchema) {
		if done[schema] || visiting[schema] {
			return
		}
		visiting[schema] = true
		for _, rel := range schema.relationInfos() {
			if rel.kind == ManyToOne {
				visit(rel.target)
			}
		}
		visiting[schema] = false
		done[schema] = true
		sorted = append(sorted, schema)
	}
	for _, schema := range entities {
		visit(schema)
	}

	return sorted, nil
}

func hasOwningSide(owner EntitySchema, inverse *relationInfo) bool {
	return lo.ContainsBy(inverse.target.relationInfos(), func(rel *relationInfo) bool {
		return rel.kind == ManyToOne && rel.name == inverse.mappedBy && rel.target == owner
	})
}
