package orm

import "github.com/Masterminds/squirrel"

type (
	Q        = squirrel.SelectBuilder
	QueryMod func(q Q, table string) Q
)

func Col(names ...string) QueryMod {
	return func(q Q, table string) Q {
		for _, name := range names {
			q = q.Column(TableCol(table, name))
		}
		return q
	}
}

// Where adds a table-qualified equality condition for every key in eq.
func Where(eq squirrel.Eq) QueryMod {
	return func(q Q, table string) Q {
		qualified := make(squirrel.Eq, len(eq))
		for col, value := range eq {
			qualified[TableCol(table, col)] = value
		}
		return q.Where(qualified)
	}
}

func OrderBy(cols ...string) QueryMod {
	return func(q Q, table string) Q {
		for _, col := range cols {
			q = q.OrderBy(TableCol(table, col))
		}
		return q
	}
}

func TableCol(table, name string) string {
	if table == "" {
		return name
	}
	return table + "." + name
}

func applyMods(q Q, table string, mods []QueryMod) Q {
	for _, mod := range mods {
		q = mod(q, table)
	}

	return q
}
