package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlalign/sqlalign/internal/adapter/postgres"
	"github.com/sqlalign/sqlalign/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testSchema = `
	CREATE TABLE person (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		age  INTEGER NOT NULL
	);

	INSERT INTO person (name, age) VALUES ('alice', 34), ('bob', 27);
`

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, connStr, postgres.PoolSettings{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	return pool
}

func newAnalyzer(pool *pgxpool.Pool) *postgres.Analyzer {
	return postgres.NewAnalyzer(postgres.NewTransactor(pool))
}

func failingFields(reports []domain.FieldReport) []domain.FieldReport {
	var out []domain.FieldReport
	for _, f := range reports {
		if !f.OK() {
			out = append(out, f)
		}
	}
	return out
}

func TestAnalyze_Aligned(t *testing.T) {
	analyzer := newAnalyzer(setupTestDB(t))

	report, err := analyzer.Analyze(context.Background(), &domain.Operation{
		Name:   "get_person",
		SQL:    "SELECT name, age FROM person WHERE id = $1",
		Kind:   domain.KindQuery,
		Params: []domain.TypeDecl{{Type: "bigint"}},
		Columns: []domain.TypeDecl{
			{Name: "name", Type: "text"},
			{Name: "age", Type: "int4"},
		},
	})
	require.NoError(t, err)
	assert.True(t, report.Aligned())
	require.Len(t, report.Parameters, 1)
	require.Len(t, report.Columns, 2)
}

func TestAnalyze_ParameterTypeMismatch(t *testing.T) {
	// Declared parameter type is string but the id column is a bigint.
	analyzer := newAnalyzer(setupTestDB(t))

	report, err := analyzer.Analyze(context.Background(), &domain.Operation{
		Name:   "get_person",
		SQL:    "SELECT name, age FROM person WHERE id = $1",
		Kind:   domain.KindQuery,
		Params: []domain.TypeDecl{{Type: "text"}},
		Columns: []domain.TypeDecl{
			{Name: "name", Type: "text"},
			{Name: "age", Type: "int4"},
		},
	})
	require.NoError(t, err, "a misalignment is report content, not a failure")

	failing := failingFields(report.Parameters)
	require.Len(t, failing, 1)
	assert.Equal(t, "$1", failing[0].Label)
	require.Len(t, failing[0].Errors, 1)
	assert.Contains(t, failing[0].Errors[0], "text")
	assert.Contains(t, failing[0].Errors[0], "int8")

	assert.Empty(t, failingFields(report.Columns))
}

func TestAnalyze_ColumnTypeMismatch(t *testing.T) {
	analyzer := newAnalyzer(setupTestDB(t))

	report, err := analyzer.Analyze(context.Background(), &domain.Operation{
		Name: "ages",
		SQL:  "SELECT age FROM person",
		Kind: domain.KindQuery,
		Columns: []domain.TypeDecl{
			{Name: "age", Type: "text"},
		},
	})
	require.NoError(t, err)

	failing := failingFields(report.Columns)
	require.Len(t, failing, 1)
	assert.Equal(t, "age", failing[0].Label)
	assert.Contains(t, failing[0].Errors[0], "declared text but column is int4")
}

func TestAnalyze_ColumnNameMismatch(t *testing.T) {
	analyzer := newAnalyzer(setupTestDB(t))

	report, err := analyzer.Analyze(context.Background(), &domain.Operation{
		Name: "names",
		SQL:  "SELECT name FROM person",
		Kind: domain.KindQuery,
		Columns: []domain.TypeDecl{
			{Name: "full_name", Type: "text"},
		},
	})
	require.NoError(t, err)

	failing := failingFields(report.Columns)
	require.Len(t, failing, 1)
	assert.Contains(t, failing[0].Errors[0], `declared column "full_name" but the statement returns "name"`)
}

func TestAnalyze_ArityMismatches(t *testing.T) {
	analyzer := newAnalyzer(setupTestDB(t))

	report, err := analyzer.Analyze(context.Background(), &domain.Operation{
		Name:   "get_person",
		SQL:    "SELECT name, age FROM person WHERE id = $1",
		Kind:   domain.KindQuery,
		Params: []domain.TypeDecl{{Type: "int8"}, {Type: "text"}},
		Columns: []domain.TypeDecl{
			{Name: "name", Type: "text"},
		},
	})
	require.NoError(t, err)

	// $2 is declared but the statement only takes one parameter.
	require.Len(t, report.Parameters, 2)
	assert.True(t, report.Parameters[0].OK())
	require.False(t, report.Parameters[1].OK())
	assert.Contains(t, report.Parameters[1].Errors[0], "takes only 1 parameter")

	// The statement returns a second column nothing declares.
	require.Len(t, report.Columns, 2)
	assert.True(t, report.Columns[0].OK())
	require.False(t, report.Columns[1].OK())
	assert.Equal(t, "age", report.Columns[1].Label)
	assert.Contains(t, report.Columns[1].Errors[0], "no column is declared")
}

func TestAnalyze_UnknownDeclaredType(t *testing.T) {
	analyzer := newAnalyzer(setupTestDB(t))

	report, err := analyzer.Analyze(context.Background(), &domain.Operation{
		Name:   "get_person",
		SQL:    "SELECT name FROM person WHERE id = $1",
		Kind:   domain.KindQuery,
		Params: []domain.TypeDecl{{Type: "java.lang.String"}},
		Columns: []domain.TypeDecl{
			{Name: "name", Type: "text"},
		},
	})
	require.NoError(t, err)

	failing := failingFields(report.Parameters)
	require.Len(t, failing, 1)
	assert.Contains(t, failing[0].Errors[0], `unknown declared type "java.lang.String"`)
}

func TestAnalyze_TypeAliases(t *testing.T) {
	analyzer := newAnalyzer(setupTestDB(t))

	report, err := analyzer.Analyze(context.Background(), &domain.Operation{
		Name:   "get_person",
		SQL:    "SELECT age FROM person WHERE id = $1",
		Kind:   domain.KindQuery,
		Params: []domain.TypeDecl{{Type: "BIGINT"}},
		Columns: []domain.TypeDecl{
			{Name: "age", Type: "integer"},
		},
	})
	require.NoError(t, err)
	assert.True(t, report.Aligned(), "SQL-standard spellings resolve to pgtype names")
}

func TestAnalyze_ExecStatementIsNotExecuted(t *testing.T) {
	pool := setupTestDB(t)
	analyzer := newAnalyzer(pool)
	ctx := context.Background()

	report, err := analyzer.Analyze(ctx, &domain.Operation{
		Name:   "purge",
		SQL:    "DELETE FROM person WHERE id = $1",
		Kind:   domain.KindExec,
		Params: []domain.TypeDecl{{Type: "int8"}},
	})
	require.NoError(t, err)
	assert.True(t, report.Aligned())
	assert.Empty(t, report.Columns)

	// Preparing a DELETE must not delete anything.
	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM person").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestAnalyze_SkipParams(t *testing.T) {
	analyzer := newAnalyzer(setupTestDB(t))

	report, err := analyzer.Analyze(context.Background(), &domain.Operation{
		Name:       "shape",
		SQL:        "SELECT name FROM person WHERE id = $1",
		Kind:       domain.KindQuery,
		SkipParams: true,
		Columns: []domain.TypeDecl{
			{Name: "name", Type: "text"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Parameters)
	assert.True(t, report.Aligned())
}

func TestAnalyze_PrepareFailure(t *testing.T) {
	analyzer := newAnalyzer(setupTestDB(t))

	_, err := analyzer.Analyze(context.Background(), &domain.Operation{
		Name: "bad",
		SQL:  "SELECT nope FROM does_not_exist",
		Kind: domain.KindQuery,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preparing statement")
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	pool := setupTestDB(t)
	tr := postgres.NewTransactor(pool)
	ctx := context.Background()

	err := tr.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "INSERT INTO person (name, age) VALUES ('carol', 41)")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM person").Scan(&count))
	assert.Equal(t, 3, count)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	pool := setupTestDB(t)
	tr := postgres.NewTransactor(pool)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tr.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO person (name, age) VALUES ('dave', 19)"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM person").Scan(&count))
	assert.Equal(t, 2, count, "the insert must be rolled back")
}

func TestTransactorFromCredentials_LazyConnect(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	connStr := pool.Config().ConnString()
	tr, err := postgres.TransactorFromCredentials("pgx", connStr, "", "")
	require.NoError(t, err)
	defer tr.Close()

	err = tr.WithTx(ctx, func(tx pgx.Tx) error {
		var one int
		return tx.QueryRow(ctx, "SELECT 1").Scan(&one)
	})
	require.NoError(t, err)
}
