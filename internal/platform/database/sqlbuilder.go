package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
	suffix string
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{
		InsertBuilder: sqlbuilder.PostgreSQL.NewInsertBuilder(),
	}
}

func (b *InsertBuilder) OnConflictDoNothing(columns ...string) *InsertBuilder {
	if len(columns) == 0 {
		b.suffix = " ON CONFLICT DO NOTHING"
		return b
	}
	b.suffix = fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(columns, ", "))
	return b
}

func (b *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	b.suffix += " RETURNING " + strings.Join(cols, ", ")
	return b
}

func (b *InsertBuilder) Build() (string, []any) {
	query, args := b.InsertBuilder.Build()
	return query + b.suffix, args
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{sqlbuilder.PostgreSQL.NewUpdateBuilder()}
}

type DeleteBuilder struct {
	*sqlbuilder.DeleteBuilder
}

func NewDeleteBuilder() *DeleteBuilder {
	return &DeleteBuilder{sqlbuilder.PostgreSQL.NewDeleteBuilder()}
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
	lock bool
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{SelectBuilder: sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

// ForUpdate appends a row lock to the built query.
func (b *SelectBuilder) ForUpdate() *SelectBuilder {
	b.lock = true
	return b
}

func (b *SelectBuilder) Build() (string, []any) {
	query, args := b.SelectBuilder.Build()
	if b.lock {
		query += " FOR UPDATE"
	}
	return query, args
}

// AnyOf flattens a string slice into builder arguments for IN clauses.
func AnyOf(ids []string) []any {
	return sqlbuilder.Flatten(ids)
}
