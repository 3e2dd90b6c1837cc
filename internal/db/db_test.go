package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestSplitSQLStatements(t *testing.T) {
	schema := `
-- users
CREATE TABLE a (id INT);

  -- indented comment
CREATE TABLE b (
    id INT
);
;
`
	stmts := splitSQLStatements(schema)

	assert.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id INT)", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestErrorClassification(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	fk := &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"}

	assert.True(t, IsDuplicate(dup))
	assert.False(t, IsDuplicate(fk))
	assert.True(t, IsMissingReference(fk))
	assert.False(t, IsMissingReference(errors.New("boom")))
}
