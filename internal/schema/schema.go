// Package schema looks up the table layout the SQL-building step grounds its
// prompt on.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column is one row of information_schema.columns.
type Column struct {
	Table      string         `db:"table_name" json:"-"`
	Name       string         `db:"column_name" json:"column_name"`
	DataType   string         `db:"data_type" json:"data_type"`
	IsNullable string         `db:"is_nullable" json:"is_nullable"`
	Default    sql.NullString `db:"column_default" json:"-"`
}

// DefaultText renders the column default the way the prompt expects ("None" when absent).
func (c Column) DefaultText() string {
	if !c.Default.Valid {
		return "None"
	}
	return c.Default.String
}

type Table struct {
	Name    string
	Columns []Column
}

// Schema lists tables in lookup order; columns keep their ordinal order.
type Schema struct {
	Tables []Table
}

// Source returns the current table schema.
type Source interface {
	GetTableSchema(ctx context.Context) (Schema, error)
}

// Group folds ordered column rows into tables, preserving first-seen table order.
func Group(cols []Column) Schema {
	var s Schema
	index := map[string]int{}
	for _, c := range cols {
		i, ok := index[c.Table]
		if !ok {
			i = len(s.Tables)
			index[c.Table] = i
			s.Tables = append(s.Tables, Table{Name: c.Table})
		}
		s.Tables[i].Columns = append(s.Tables[i].Columns, c)
	}
	return s
}

// FormatPrompt renders the schema context and the user's question for the
// SQL-building step.
func FormatPrompt(s Schema, question string) string {
	var b strings.Builder
	b.WriteString("Here is the schema for the tables in the database:\n\n")
	for _, t := range s.Tables {
		fmt.Fprintf(&b, "Table %s:\n", t.Name)
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "  - %s (%s), Nullable: %s, Default: %s\n", c.Name, c.DataType, c.IsNullable, c.DefaultText())
		}
	}
	fmt.Fprintf(&b, "\nUser's question: %s\n", question)
	b.WriteString("Generate the postgres SQL query to answer the user's question. Return only the query string and nothing else.")
	return b.String()
}

// Static serves a fixed schema.
type Static struct {
	Schema Schema
	Err    error
}

func (s Static) GetTableSchema(ctx context.Context) (Schema, error) {
	return s.Schema, s.Err
}
