package orm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

type Schema[T any] struct {
	Table     string
	Fields    []FieldType[T]
	Relations map[string]Relation[T]
	QueryMods []QueryMod

	fieldIndex    map[string]int
	relationOrder []string
	pk            int
}

// New creates a schema for T stored in table. An empty table name is derived
// from the type name, see TableName.
func New[T any](table string) *Schema[T] {
	if table == "" {
		table = TableName[T]()
	}

	schema := &Schema[T]{
		Table:      table,
		Relations:  make(map[string]Relation[T]),
		fieldIndex: map[string]int{},
		pk:         -1,
	}

	return schema
}

// PrimaryKey declares the auto-incremented integer primary key.
func (schema *Schema[T]) PrimaryKey(name string, ptr func(t *T) *int64) *Schema[T] {
	field := Field(name, SnakeCase(name), func(t *T) any { return ptr(t) })
	field.primary = true

	schema.AddFieldType(field)
	schema.pk = len(schema.Fields) - 1

	return schema
}

func (schema *Schema[T]) AddField(name, column string, ptr func(t *T) any) *Schema[T] {
	return schema.AddFieldType(Field(name, column, ptr))
}

func (schema *Schema[T]) AddFieldType(field FieldType[T]) *Schema[T] {
	if field.Name != "" {
		schema.fieldIndex[field.Name] = len(schema.Fields)
	}
	schema.Fields = append(schema.Fields, field)

	return schema
}

// AddSimpleField When the column is the snake_cased field name and maps directly, use this.
func (schema *Schema[T]) AddSimpleField(name string, ptr func(t *T) any) *Schema[T] {
	return schema.AddField(name, SnakeCase(name), ptr)
}

// AddTimestamp adds a time field that flush sets on the given hooks.
func (schema *Schema[T]) AddTimestamp(name string, ptr func(t *T) *time.Time, hooks Hook) *Schema[T] {
	field := Field(name, SnakeCase(name), func(t *T) any { return ptr(t) })
	field.hooks = hooks
	field.touch = func(t *T, at time.Time) { *ptr(t) = at }

	return schema.AddFieldType(field)
}

func (schema *Schema[T]) AddRelation(name string, relation Relation[T]) *Schema[T] {
	relation.name = name
	relation.owner = schema
	if relation.fk != nil {
		schema.AddFieldType(*relation.fk)
	}

	if _, ok := schema.Relations[name]; !ok {
		schema.relationOrder = append(schema.relationOrder, name)
	}
	schema.Relations[name] = relation

	return schema
}

func (schema *Schema[T]) ModifyQuery(mod QueryMod) *Schema[T] {
	schema.QueryMods = append(schema.QueryMods, mod)

	return schema
}

func (schema *Schema[T]) Query(populate ...string) Query[T] {
	return newQuery(schema, populate...)
}

// Check validates a dotted relation path such as "books.author".
func (schema *Schema[T]) Check(path string) error {
	relation, rest := isNested(path)

	if relation == "" {
		return nil
	}

	if !schema.hasRelation(relation) {
		return fmt.Errorf("%w: %s", ErrNoSuchRelation, relation)
	}

	return schema.Relations[relation].Check(rest)
}

// ToJSON returns the plain object form of entity. References are written as
// their primary key and initialized collections as lists of plain objects.
func (schema *Schema[T]) ToJSON(entity *T) Data {
	return schema.serialize(newSerializer(false), entity)
}

// ToPOJO is like ToJSON but writes references as objects: the full entity when
// it is populated and not already being serialized, else just its primary key.
func (schema *Schema[T]) ToPOJO(entity *T) Data {
	return schema.serialize(newSerializer(true), entity)
}

// Serialize encodes ToJSON as JSON.
func (schema *Schema[T]) Serialize(entity *T) ([]byte, error) {
	return json.Marshal(schema.ToJSON(entity))
}

func (schema *Schema[T]) EntityName() string {
	return reflect.TypeFor[T]().Name()
}

func (schema *Schema[T]) TableName() string {
	return schema.Table
}

func (schema *Schema[T]) hasRelation(name string) bool {
	_, ok := schema.Relations[name]
	return ok
}

func (schema *Schema[T]) primaryKey() FieldType[T] {
	if schema.pk < 0 {
		panic(fmt.Sprintf("orm: schema %s has no primary key", schema.EntityName()))
	}
	return schema.Fields[schema.pk]
}

// =================
// EntitySchema
// =================

func (schema *Schema[T]) entityType() reflect.Type {
	return reflect.TypeFor[*T]()
}

func (schema *Schema[T]) pkName() string {
	return schema.primaryKey().Name
}

func (schema *Schema[T]) pkColumn() string {
	return schema.primaryKey().Column
}

func (schema *Schema[T]) idOf(entity any) int64 {
	id, _ := schema.primaryKey().Value(entity.(*T)).(int64)
	return id
}

func (schema *Schema[T]) setID(entity any, id int64) {
	_ = schema.primaryKey().Assign(entity.(*T), id)
}

func (schema *Schema[T]) values(entity any) Data {
	t := entity.(*T)
	values := make(Data, len(schema.Fields))
	for _, field := range schema.Fields {
		if field.primary || field.Value == nil {
			continue
		}
		values[field.Column] = field.Value(t)
	}

	return values
}

// touch sets the timestamps of the given hook to at. The returned func puts
// back the previous values.
func (schema *Schema[T]) touch(entity any, at time.Time, hook Hook) func() {
	t := entity.(*T)

	var restore []Action
	for _, field := range schema.Fields {
		if field.touch == nil || field.hooks&hook == 0 {
			continue
		}
		previous, _ := field.Value(t).(time.Time)
		set := field.touch
		restore = append(restore, func() { set(t, previous) })
		set(t, at)
	}

	return flattenActions(restore)
}

func (schema *Schema[T]) wire(entity any, isNew bool) {
	t := entity.(*T)
	for _, name := range schema.relationOrder {
		schema.Relations[name].wire(t, isNew)
	}
}

func (schema *Schema[T]) hydrate(h *hydrator, data Data) (any, error) {
	t := new(T)
	schema.wire(t, true)

	for key, value := range data {
		if ix, ok := schema.fieldIndex[key]; ok {
			field := schema.Fields[ix]
			if field.Assign == nil {
				return nil, fmt.Errorf("%w: %s.%s is read only", ErrInvalidValue, schema.EntityName(), key)
			}
			if err := field.Assign(t, value); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", schema.EntityName(), key, err)
			}
			continue
		}

		if relation, ok := schema.Relations[key]; ok {
			if err := relation.assign(h, t, value); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", schema.EntityName(), key, err)
			}
			continue
		}

		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchField, schema.EntityName(), key)
	}

	h.track(schema, t)

	return t, nil
}

func (schema *Schema[T]) serialize(s *serializer, entity any) Data {
	t := entity.(*T)
	s.visit(entity)

	data := Data{}
	for _, field := range schema.Fields {
		if field.Name == "" || field.Value == nil {
			continue
		}
		data[field.Name] = field.Value(t)
	}

	for _, name := range schema.relationOrder {
		if value, ok := schema.Relations[name].serialize(s, t); ok {
			data[name] = value
		}
	}

	return data
}

func (schema *Schema[T]) reachable(entity any) []any {
	t := entity.(*T)

	var related []any
	for _, name := range schema.relationOrder {
		related = append(related, schema.Relations[name].reachable(t)...)
	}

	return related
}

func (schema *Schema[T]) linkInverse(owner any, childSchema EntitySchema, mappedBy string, child any) {
	t := owner.(*T)
	for _, name := range schema.relationOrder {
		relation := schema.Relations[name]
		if relation.kind == OneToMany && relation.target == childSchema && relation.mappedBy == mappedBy {
			relation.link(t, child)
		}
	}
}

func (schema *Schema[T]) relationInfos() []*relationInfo {
	infos := make([]*relationInfo, 0, len(schema.relationOrder))
	for _, name := range schema.relationOrder {
		infos = append(infos, schema.Relations[name].relationInfo)
	}

	return infos
}

func (schema *Schema[T]) columns() []columnDef {
	defs := make([]columnDef, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		defs = append(defs, columnDef{
			name:       field.Column,
			goType:     field.goType,
			primary:    field.primary,
			nullable:   field.nullable,
			references: field.references,
		})
	}

	return defs
}
