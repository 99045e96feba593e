package orm

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/spf13/cast"
)

// Hook marks when a timestamp field is set automatically during flush.
type Hook uint8

const (
	OnCreate Hook = 1 << iota
	OnUpdate
)

type (
	Ptrs           []any
	RowScan[T any] func(*T) (Ptrs, Action)
	Action         func()

	// FieldType describes how a single column is read into, written from and
	// hydrated onto an entity of type T.
	FieldType[T any] struct {
		// Name is the key used in plain objects. Foreign key columns owned by a
		// relation have no name, the relation serializes them.
		Name    string
		Column  string
		Mod     QueryMod
		RowScan RowScan[T]
		Value   func(*T) any
		Assign  func(*T, any) error

		hooks      Hook
		touch      func(*T, time.Time)
		goType     reflect.Type
		primary    bool
		nullable   bool
		references EntitySchema
	}
)

func Ptr[T any](ptr func(t *T) any) RowScan[T] {
	return func(t *T) (Ptrs, Action) {
		return Ptrs{ptr(t)}, nil
	}
}

// Field builds a read/write field backed by the struct member ptr points at.
func Field[T any](name, column string, ptr func(t *T) any) FieldType[T] {
	return FieldType[T]{
		Name:    name,
		Column:  column,
		Mod:     Col(column),
		RowScan: Ptr(ptr),
		Value: func(t *T) any {
			return reflect.ValueOf(ptr(t)).Elem().Interface()
		},
		Assign: func(t *T, value any) error {
			return assignValue(ptr(t), value)
		},
		goType: reflect.TypeOf(ptr(new(T))).Elem(),
	}
}

func (field FieldType[T]) isForeignKey() bool {
	return field.references != nil
}

// assignValue coerces a loosely typed plain value (as produced by ToJSON or by
// decoding JSON) into the variable dst points at.
func assignValue(dst any, value any) error {
	target := reflect.ValueOf(dst).Elem()
	if value == nil {
		target.SetZero()
		return nil
	}

	var err error
	switch p := dst.(type) {
	case *string:
		*p, err = cast.ToStringE(value)
	case *int64:
		*p, err = toInt64(value)
	case *int:
		var n int64
		n, err = toInt64(value)
		*p = int(n)
	case *uint64:
		*p, err = cast.ToUint64E(value)
	case *float64:
		*p, err = cast.ToFloat64E(value)
	case *bool:
		*p, err = cast.ToBoolE(value)
	case *time.Time:
		*p, err = cast.ToTimeE(value)
	default:
		v := reflect.ValueOf(value)
		if !v.Type().ConvertibleTo(target.Type()) {
			return fmt.Errorf("%w: cannot assign %T to %s", ErrInvalidValue, value, target.Type())
		}
		target.Set(v.Convert(target.Type()))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	return nil
}

// toInt64 is cast.ToInt64E without truncating fractional numbers.
func toInt64(value any) (int64, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return cast.ToInt64E(value)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not a whole number", f)
	}

	return int64(f), nil
}

func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func flattenRowScan[T any](rowScans []RowScan[T]) RowScan[T] {
	return func(t *T) (Ptrs, Action) {
		var (
			pointers Ptrs
			actions  []Action
		)
		for _, rowScan := range rowScans {
			ptr, action := rowScan(t)
			pointers = append(pointers, ptr...)
			if action != nil {
				actions = append(actions, action)
			}
		}

		return pointers, flattenActions(actions)
	}
}

func flattenActions(actions []Action) Action {
	return func() {
		for _, action := range actions {
			action()
		}
	}
}
