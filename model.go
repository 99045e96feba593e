package orm

import (
	"reflect"
	"time"
)

// Data is the plain object form of an entity: property names to values.
type Data = map[string]any

// EntitySchema is the type-erased view of a *Schema[T] used by the entity
// manager, the unit of work and the schema generator, which handle entities
// of many types at once. Only *Schema[T] implements it.
type EntitySchema interface {
	EntityName() string
	TableName() string

	entityType() reflect.Type
	pkName() string
	pkColumn() string
	idOf(entity any) int64
	setID(entity any, id int64)
	values(entity any) Data
	touch(entity any, at time.Time, hook Hook) (undo func())
	wire(entity any, isNew bool)
	hydrate(h *hydrator, data Data) (any, error)
	serialize(s *serializer, entity any) Data
	reachable(entity any) []any
	linkInverse(owner any, childSchema EntitySchema, mappedBy string, child any)
	relationInfos() []*relationInfo
	columns() []columnDef
}

type RelationKind int

const (
	// ManyToOne is the owning side, it stores the foreign key.
	ManyToOne RelationKind = iota
	// OneToMany is the inverse side, a collection mapped by a ManyToOne on the target.
	OneToMany
)

func (kind RelationKind) String() string {
	if kind == OneToMany {
		return "1:m"
	}
	return "m:1"
}

type relationInfo struct {
	name     string
	kind     RelationKind
	owner    EntitySchema
	target   EntitySchema
	mappedBy string
	column   string
}

type columnDef struct {
	name       string
	goType     reflect.Type
	primary    bool
	nullable   bool
	references EntitySchema
}

// entityKey identifies a row in the identity map.
type entityKey struct {
	table string
	id    int64
}

func keyOf(schema EntitySchema, entity any) entityKey {
	return entityKey{table: schema.TableName(), id: schema.idOf(entity)}
}
