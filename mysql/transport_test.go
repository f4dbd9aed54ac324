package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadb-go/hadb"
	"github.com/hadb-go/hadb/mysql"
	"github.com/hadb-go/hadb/test_helpers"
)

type mockDB struct {
	tr    *mysql.Transport
	mock  sqlmock.Sqlmock
	cfgs  []*gomysql.Config
	opens int
}

func newMockDB(t *testing.T) *mockDB {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	m := &mockDB{tr: mysql.New(mysql.Opts{}), mock: mock}
	m.tr.SetOpenDB(func(cfg *gomysql.Config) (*sql.DB, error) {
		m.cfgs = append(m.cfgs, cfg)
		m.opens++
		return db, nil
	})
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return m
}

func (m *mockDB) expectSession(id int64) {
	m.mock.ExpectQuery("SELECT CONNECTION_ID()").
		WillReturnRows(sqlmock.NewRows([]string{"CONNECTION_ID()"}).AddRow(id))
}

func (m *mockDB) connect(t *testing.T, desc *hadb.ServerDescription) *hadb.Connection {
	t.Helper()
	return test_helpers.ConnectWithValidation(t, m.tr, desc)
}

func TestDialInitializesSession(t *testing.T) {
	m := newMockDB(t)
	m.expectSession(42)
	m.mock.ExpectExec("SET NAMES utf8mb4").WillReturnResult(sqlmock.NewResult(0, 0))
	m.mock.ExpectExec("SET @app = 'hadb'").WillReturnResult(sqlmock.NewResult(0, 0))
	m.mock.ExpectExec("SET AUTOCOMMIT = 0").WillReturnResult(sqlmock.NewResult(0, 0))
	m.mock.ExpectClose()

	desc := test_helpers.NewDescription("db1").
		SetPort(3307).
		SetDatabase("shop").
		SetCharset("utf8mb4").
		SetAutocommit(false).
		SetOption(hadb.OptInitCommand, "SET @app = 'hadb';")
	conn := m.connect(t, desc)

	assert.Equal(t, hadb.ConnID{Endpoint: "db1:3307", Session: 42}, conn.ID())
	require.Len(t, m.cfgs, 1)
	assert.Equal(t, "db1:3307", m.cfgs[0].Addr)
	assert.Equal(t, "test", m.cfgs[0].User)
	assert.Equal(t, "shop", m.cfgs[0].DBName)

	require.NoError(t, conn.Close())
}

func TestDialFailureCarriesNativeCode(t *testing.T) {
	m := newMockDB(t)
	m.mock.ExpectQuery("SELECT CONNECTION_ID()").
		WillReturnError(&gomysql.MySQLError{Number: hadb.ErrCodeAccessDenied, Message: "Access denied for user 'test'"})
	m.mock.ExpectClose()

	_, err := hadb.Connect(context.Background(), m.tr, test_helpers.NewDescription("db1"))

	var cerr *hadb.ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "db1", cerr.Server)
	assert.EqualValues(t, hadb.ErrCodeAccessDenied, cerr.Code)
	assert.Equal(t, "Access denied for user 'test'", cerr.Msg)
	assert.False(t, cerr.Temporary())
}

func TestDialRejectsInvalidOptions(t *testing.T) {
	m := newMockDB(t)

	desc := test_helpers.NewDescription("db1").SetOption("compress", "1")
	_, err := hadb.Connect(context.Background(), m.tr, desc)

	var cerr *hadb.ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, hadb.ErrConfig)
	assert.False(t, cerr.Temporary())
	assert.Zero(t, m.opens)
}

func TestPersistentSessionsShareThePool(t *testing.T) {
	m := newMockDB(t)
	m.expectSession(1)
	m.expectSession(2)
	m.mock.ExpectClose()

	desc := test_helpers.NewDescription("p:db1")
	first := m.connect(t, desc)
	require.NoError(t, first.Close())
	second := m.connect(t, desc)
	require.NoError(t, second.Close())

	assert.Equal(t, 1, m.opens)
	assert.EqualValues(t, 2, second.ID().Session)
	require.NoError(t, m.tr.Close())
	assert.ErrorIs(t, m.tr.Close(), mysql.ErrTransportClosed)
}

func TestSyncQueries(t *testing.T) {
	ctx := context.Background()
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), []byte("ann")).AddRow(int64(2), "bob"))
	m.mock.ExpectExec("UPDATE users SET name = 'x'").WillReturnResult(sqlmock.NewResult(9, 2))
	m.mock.ExpectClose()

	conn := m.connect(t, test_helpers.NewDescription("db1"))

	data, err := conn.Query(ctx, "SELECT id, name FROM users", hadb.ModeStore)
	require.NoError(t, err)
	rs, ok := data.(*mysql.ResultSet)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	assert.Equal(t, [][]any{{int64(1), "ann"}, {int64(2), "bob"}}, rs.Rows)
	assert.Equal(t, []map[string]any{{"id": int64(1), "name": "ann"}, {"id": int64(2), "name": "bob"}}, rs.Maps())
	assert.Equal(t, hadb.Status{AffectedRows: 2, FieldCount: 2, Info: "SELECT id, name FROM users"}, conn.Status())

	data, err = conn.Query(ctx, "UPDATE users SET name = 'x'", hadb.ModeStore)
	require.NoError(t, err)
	assert.Equal(t, true, data)
	assert.EqualValues(t, 2, conn.Status().AffectedRows)
	assert.EqualValues(t, 9, conn.Status().InsertID)

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Close(), mysql.ErrHandleClosed)
}

func TestSyncQueryErrorStatus(t *testing.T) {
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectQuery("SELECT * FROM nope").WillReturnError(&gomysql.MySQLError{
		Number:   1146,
		SQLState: [5]byte{'4', '2', 'S', '0', '2'},
		Message:  "Table 'shop.nope' doesn't exist",
	})
	m.mock.ExpectClose()

	conn := m.connect(t, test_helpers.NewDescription("db1"))
	_, err := conn.Query(context.Background(), "SELECT * FROM nope", hadb.ModeStore)
	require.Error(t, err)

	st := conn.Status()
	assert.EqualValues(t, 1146, st.ErrNo)
	assert.Equal(t, "42S02", st.SQLState)
	assert.Equal(t, "Table 'shop.nope' doesn't exist", st.Error)
	assert.EqualValues(t, -1, st.AffectedRows)

	require.NoError(t, conn.Close())
}

func TestUnbufferedQueryReturnsRows(t *testing.T) {
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	m.mock.ExpectClose()

	conn := m.connect(t, test_helpers.NewDescription("db1"))
	data, err := conn.Query(context.Background(), "SELECT 1", hadb.ModeUse)
	require.NoError(t, err)

	rows, ok := data.(*sql.Rows)
	require.True(t, ok)
	var n int
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, rows.Close())

	require.NoError(t, conn.Close())
}

func TestAsyncQueryIsPolled(t *testing.T) {
	ctx := context.Background()
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectQuery("SELECT SLEEP(1)").
		WillDelayFor(100 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"SLEEP(1)"}).AddRow(int64(0)))
	m.mock.ExpectClose()

	conn := m.connect(t, test_helpers.NewDescription("db1"))
	_, err := conn.Query(ctx, "SELECT SLEEP(1)", hadb.ModeStore|hadb.ModeAsync)
	require.NoError(t, err)

	_, err = conn.Query(ctx, "SELECT 2", hadb.ModeStore)
	assert.ErrorIs(t, err, mysql.ErrQueryPending)

	res, err := m.tr.Poll(ctx, []*hadb.Connection{conn}, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, res.Ready)

	res, err = m.tr.Poll(ctx, []*hadb.Connection{conn}, time.Second)
	require.NoError(t, err)
	require.Len(t, res.Ready, 1)
	assert.Same(t, conn, res.Ready[0])

	data, err := conn.Reap()
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(0)}}, data.(*mysql.ResultSet).Rows)

	_, err = conn.Reap()
	assert.ErrorIs(t, err, mysql.ErrNothingPending)

	require.NoError(t, conn.Close())
}

func TestPollReportsLostConnections(t *testing.T) {
	ctx := context.Background()
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectQuery("SELECT 1").WillReturnError(gomysql.ErrInvalidConn)
	m.mock.ExpectClose()

	conn := m.connect(t, test_helpers.NewDescription("db1"))
	_, err := conn.Query(ctx, "SELECT 1", hadb.ModeStore|hadb.ModeAsync)
	require.NoError(t, err)

	res, err := m.tr.Poll(ctx, []*hadb.Connection{conn}, time.Second)
	require.NoError(t, err)
	require.Len(t, res.Errored, 1)

	_, err = conn.Reap()
	assert.ErrorIs(t, err, gomysql.ErrInvalidConn)
	assert.ErrorIs(t, err, hadb.ErrConnLost)

	require.NoError(t, conn.Close())
}

func TestQueryMarksLostSessions(t *testing.T) {
	ctx := context.Background()
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("syntax"))
	m.mock.ExpectQuery("SELECT 2").WillReturnError(gomysql.ErrInvalidConn)
	m.mock.ExpectExec("COMMIT").WillReturnError(gomysql.ErrInvalidConn)
	m.mock.ExpectClose()

	conn := m.connect(t, test_helpers.NewDescription("db1"))

	_, err := conn.Query(ctx, "SELECT 1", hadb.ModeStore)
	require.Error(t, err)
	assert.NotErrorIs(t, err, hadb.ErrConnLost)

	_, err = conn.Query(ctx, "SELECT 2", hadb.ModeStore)
	assert.ErrorIs(t, err, hadb.ErrConnLost)
	assert.ErrorIs(t, err, gomysql.ErrInvalidConn)

	assert.ErrorIs(t, conn.Commit(ctx), hadb.ErrConnLost)

	require.NoError(t, conn.Close())
}

func TestPollRejectsInvalidTargets(t *testing.T) {
	ctx := context.Background()
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectClose()

	idle := m.connect(t, test_helpers.NewDescription("db1"))
	foreign := test_helpers.ConnectWithValidation(t, test_helpers.NewMockTransport(), test_helpers.NewDescription("db2"))

	res, err := m.tr.Poll(ctx, []*hadb.Connection{idle, foreign}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []*hadb.Connection{idle, foreign}, res.Rejected)

	require.NoError(t, idle.Close())
}

func TestPollHonorsContext(t *testing.T) {
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectQuery("SELECT SLEEP(1)").
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"SLEEP(1)"}).AddRow(int64(0)))
	m.mock.ExpectClose()

	conn := m.connect(t, test_helpers.NewDescription("db1"))
	_, err := conn.Query(context.Background(), "SELECT SLEEP(1)", hadb.ModeStore|hadb.ModeAsync)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.tr.Poll(ctx, []*hadb.Connection{conn}, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = conn.Reap()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectExec("START TRANSACTION").WillReturnResult(sqlmock.NewResult(0, 0))
	m.mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))
	m.mock.ExpectExec("START TRANSACTION").WillReturnResult(sqlmock.NewResult(0, 0))
	m.mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))
	m.mock.ExpectClose()

	conn := m.connect(t, test_helpers.NewDescription("db1"))
	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Commit(ctx))
	require.NoError(t, conn.Begin(ctx))
	require.NoError(t, conn.Rollback(ctx))
	assert.Equal(t, "ROLLBACK", conn.Status().Info)

	require.NoError(t, conn.Close())
}

func TestEscape(t *testing.T) {
	m := newMockDB(t)
	m.expectSession(7)
	m.mock.ExpectClose()

	conn := m.connect(t, test_helpers.NewDescription("db1"))
	tests := map[string]string{
		"plain":       "plain",
		"O'Reilly":    `O\'Reilly`,
		`say "hi"`:    `say \"hi\"`,
		`C:\dir`:      `C:\\dir`,
		"a\nb\r\x00c": `a\nb\r\0c`,
		"eof\x1a":     `eof\Z`,
	}
	for in, want := range tests {
		assert.Equal(t, want, conn.Escape(in), in)
	}

	require.NoError(t, conn.Close())
}
