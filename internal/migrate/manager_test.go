package migrate

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"0001_actions.up.sql":   {Data: []byte("create table actions (id text);\ncreate index a_idx on actions (id);")},
		"0001_actions.down.sql": {Data: []byte("drop table actions;")},
		"0002_notes.up.sql":     {Data: []byte("alter table actions add column note text default ';';")},
		"0002_notes.down.sql":   {Data: []byte("alter table actions drop column note;")},
		"README.md":             {Data: []byte("ignored")},
	}
}

func fixedNow() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := NewManager(db, testFS())
	m.now = fixedNow

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_actions.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("alter table actions add column note").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_notes.up.sql", fixedNow()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := m.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_notes.up.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := NewManager(db, testFS())
	mock.ExpectExec("create table if not exists").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table actions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index a_idx").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	applied, err := m.Up(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_actions.up.sql")
	assert.Empty(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownRevertsLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := NewManager(db, testFS(), WithTable("oversight_migrations"))
	mock.ExpectExec("create table if not exists oversight_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from oversight_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_actions.up.sql").AddRow("0002_notes.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("alter table actions drop column note").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from oversight_migrations").
		WithArgs("0002_notes.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	last, err := m.Down(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0002_notes.up.sql", last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := NewManager(db, testFS())
	mock.ExpectExec("create table if not exists").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err = m.Down(context.Background())
	assert.True(t, errors.Is(err, ErrNothingApplied))
}

func TestSplitStatementsRespectsQuotes(t *testing.T) {
	stmts := splitStatements("insert into t values ('a;b'); select 1;\n")
	require.Len(t, stmts, 2)
	assert.Equal(t, "insert into t values ('a;b');", stmts[0])
	assert.Equal(t, " select 1;", stmts[1])
}
