package orm

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

// SchemaGenerator creates and drops the tables of the registered entities.
type SchemaGenerator struct {
	orm *ORM
}

// CreateStatements returns one create table statement per entity, referenced
// tables first.
func (g *SchemaGenerator) CreateStatements() []string {
	statements := make([]string, 0, len(g.orm.schemas))
	for _, schema := range g.orm.schemas {
		statements = append(statements, createTable(schema))
	}

	return statements
}

// DropStatements returns the drop statements in reverse dependency order.
func (g *SchemaGenerator) DropStatements() []string {
	statements := make([]string, 0, len(g.orm.schemas))
	for _, schema := range slices.Backward(g.orm.schemas) {
		statements = append(statements, fmt.Sprintf("drop table if exists %s", quote(schema.TableName())))
	}

	return statements
}

// SQL returns the full create script.
func (g *SchemaGenerator) SQL() string {
	return strings.Join(g.CreateStatements(), ";\n") + ";\n"
}

func (g *SchemaGenerator) CreateSchema(ctx context.Context) error {
	return g.exec(ctx, g.CreateStatements())
}

func (g *SchemaGenerator) DropSchema(ctx context.Context) error {
	return g.exec(ctx, g.DropStatements())
}

// RefreshDatabase drops and recreates every table.
func (g *SchemaGenerator) RefreshDatabase(ctx context.Context) error {
	return g.exec(ctx, slices.Concat(g.DropStatements(), g.CreateStatements()))
}

func (g *SchemaGenerator) exec(ctx context.Context, statements []string) error {
	runner := g.orm.runner(g.orm.db)
	for _, statement := range statements {
		if _, err := runner.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}

	return nil
}

func createTable(schema EntitySchema) string {
	columns := schema.columns()
	defs := make([]string, 0, len(columns))
	for _, column := range columns {
		def := quote(column.name) + " " + sqlType(column.goType)
		switch {
		case column.primary:
			def += " not null primary key autoincrement"
		case column.nullable:
			def += " null"
		default:
			def += " not null"
		}
		if column.references != nil {
			def += fmt.Sprintf(" references %s (%s)", quote(column.references.TableName()), quote(column.references.pkColumn()))
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("create table %s (%s)", quote(schema.TableName()), strings.Join(defs, ", "))
}

func sqlType(t reflect.Type) string {
	if t == nil {
		return "text"
	}
	if t == reflect.TypeFor[time.Time]() {
		return "datetime"
	}

	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "real"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "blob"
		}
	}

	return "text"
}

func quote(name string) string {
	return `"` + name + `"`
}
