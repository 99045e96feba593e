package example

import (
	"time"

	"pollex.nl/orm"
)

// Base carries the identifier and timestamps shared by every entity.
type Base struct {
	ID        int64
	UpdatedAt time.Time
	CreatedAt time.Time
}

type Author struct {
	Base
	Name string

	Books orm.Collection[Book]
}

type Book struct {
	Base
	Title string

	Author orm.Ref[Author]
}
