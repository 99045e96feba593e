package orm

import (
	"database/sql"

	"go.uber.org/zap"
)

// DebugFlag selects what the query logger writes.
type DebugFlag string

const (
	// DebugQuery logs every statement with its duration.
	DebugQuery DebugFlag = "query"
	// DebugQueryParams adds bound parameters to logged statements.
	DebugQueryParams DebugFlag = "query-params"
)

const memoryDB = ":memory:"

type Options struct {
	// DBName is the SQLite database file. Empty or ":memory:" opens a private
	// in-memory database.
	DBName string
	// DB is used instead of opening DBName when set. Close leaves it open.
	DB *sql.DB

	Entities []EntitySchema

	Debug  []DebugFlag
	Logger *zap.Logger

	// PersistOnCreate schedules entities made by Create for insertion.
	PersistOnCreate bool
	// AllowGlobalContext permits using ORM.EM() directly instead of a fork.
	AllowGlobalContext bool
}

func (opts Options) inMemory() bool {
	return opts.DBName == "" || opts.DBName == memoryDB
}

func (opts Options) dsn() string {
	if opts.inMemory() {
		return "file::memory:?_foreign_keys=on"
	}
	return "file:" + opts.DBName + "?_foreign_keys=on"
}
