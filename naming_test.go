package orm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pollex.nl/orm"
)

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ID", "id"},
		{"id", "id"},
		{"createdAt", "created_at"},
		{"UpdatedAt", "updated_at"},
		{"authorID", "author_id"},
		{"HTTPServer", "http_server"},
		{"book2Author", "book2_author"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, orm.SnakeCase(tt.in), tt.in)
	}
}

type BookComment struct{}

func TestTableName(t *testing.T) {
	assert.Equal(t, "authors", orm.TableName[Author]())
	assert.Equal(t, "book_comments", orm.TableName[BookComment]())
}
