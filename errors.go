package orm

import "errors"

var (
	// ErrNoSuchField is returned when a plain object carries a key that is neither a field nor a relation.
	ErrNoSuchField = errors.New("field does not exist")
	// ErrNoSuchRelation is returned when populating a relation that does not exist.
	ErrNoSuchRelation = errors.New("relation does not exist")
	// ErrTooManyResults is returned when CollectOne is called but returned many models
	ErrTooManyResults = errors.New("too many result for CollectOne")

	// ErrNoEntities is returned by Init when no entity schema was registered.
	ErrNoEntities = errors.New("no entities registered")
	// ErrUnknownEntity is returned when an entity type or relation target is not registered.
	ErrUnknownEntity = errors.New("entity is not registered")
	// ErrDuplicateEntity is returned by Init when a schema or table is registered twice.
	ErrDuplicateEntity = errors.New("entity registered twice")
	// ErrGlobalContext is returned when the global entity manager is used without AllowGlobalContext.
	ErrGlobalContext = errors.New("using the global entity manager is not allowed, use Fork()")
	// ErrNotManaged is returned when removing an entity the unit of work does not track.
	ErrNotManaged = errors.New("entity is not managed")
	// ErrInvalidValue is returned when a plain value cannot be assigned to a field.
	ErrInvalidValue = errors.New("invalid value")
	// ErrNoPrimaryKey is returned by Init for a schema without PrimaryKey.
	ErrNoPrimaryKey = errors.New("schema has no primary key")
)
