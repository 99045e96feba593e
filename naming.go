package orm

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// SnakeCase converts a CamelCase or camelCase name to snake_case, keeping
// acronyms together: "ID" → "id", "authorID" → "author_id", "createdAt" → "created_at".
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		if i > 0 {
			prev := runes[i-1]
			next := rune(0)
			if i+1 < len(runes) {
				next = runes[i+1]
			}
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// TableName derives the table name for T: the snake_cased, pluralized type name.
func TableName[T any]() string {
	return inflection.Plural(SnakeCase(reflect.TypeFor[T]().Name()))
}
