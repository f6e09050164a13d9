package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Select(t *testing.T) {
	v := NewStatementValidator()
	kind, err := v.Classify("SELECT name, age FROM person WHERE id = $1")
	require.NoError(t, err)
	assert.Equal(t, KindQuery, kind)
}

func TestClassify_Mutations(t *testing.T) {
	v := NewStatementValidator()
	for _, sql := range []string{
		"INSERT INTO person (name) VALUES ($1)",
		"UPDATE person SET name = $1 WHERE id = $2",
		"DELETE FROM person WHERE id = $1",
	} {
		kind, err := v.Classify(sql)
		require.NoError(t, err, sql)
		assert.Equal(t, KindExec, kind, sql)
	}
}

func TestClassify_Empty(t *testing.T) {
	v := NewStatementValidator()
	_, err := v.Classify("   ")
	assert.ErrorIs(t, err, ErrEmptyStatement)
}

func TestClassify_MultiStatement(t *testing.T) {
	v := NewStatementValidator()
	_, err := v.Classify("SELECT 1; SELECT 2")
	assert.ErrorIs(t, err, ErrMultiStatement)
}

func TestClassify_ParseError(t *testing.T) {
	v := NewStatementValidator()
	_, err := v.Classify("SELEKT broken")
	assert.ErrorIs(t, err, ErrParseFailed)
}

func TestClassify_DDLUnsupported(t *testing.T) {
	v := NewStatementValidator()
	_, err := v.Classify("CREATE TABLE t (id int)")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestValidate_KindMismatch(t *testing.T) {
	v := NewStatementValidator()

	err := v.Validate("DELETE FROM person", KindQuery)
	assert.ErrorIs(t, err, ErrKindMismatch)

	err = v.Validate("SELECT 1", KindExec)
	assert.ErrorIs(t, err, ErrKindMismatch)

	assert.NoError(t, v.Validate("SELECT 1", KindQuery))
	assert.NoError(t, v.Validate("DELETE FROM person", KindExec))
}
