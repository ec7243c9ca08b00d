package core

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyuangang/sqlrun/pkg/models"
)

func executeAndRender(t *testing.T, s Session, formatter Formatter, sql string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	renderer := NewRenderer(&buf, nil)
	err := NewExecutor(formatter, nil).Execute(context.Background(), s, sql, renderer.Render)
	return buf.String(), err
}

func TestExecuteScenarios(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		want    string
		wantErr error
	}{
		{
			name: "查询多行",
			sql:  "SELECT ID, NAME FROM USERS ORDER BY ID",
			want: "ID\tNAME\n1\tAlice\n2\tBob\n",
		},
		{
			name: "空表只输出表头",
			sql:  "SELECT * FROM EMPTY_TABLE",
			want: "A\tB\n",
		},
		{
			name: "更新一行",
			sql:  "UPDATE USERS SET NAME='X' WHERE ID=1",
			want: "Rows affected: 1\n",
		},
		{
			name: "删除零行",
			sql:  "DELETE FROM USERS WHERE ID=999",
			want: "Rows affected: 0\n",
		},
		{
			name: "更新全部行",
			sql:  "UPDATE USERS SET NOTE='n'",
			want: "Rows affected: 2\n",
		},
		{
			name: "触发器写入不计入",
			sql:  "UPDATE USERS SET NOTE='audited' WHERE ID=2",
			want: "Rows affected: 1\n",
		},
		{
			name: "DDL",
			sql:  "CREATE TABLE T2 (X INTEGER)",
			want: "Rows affected: 0\n",
		},
		{
			name: "NULL 值",
			sql:  "SELECT NOTE FROM USERS WHERE ID=1",
			want: "NOTE\nNULL\n",
		},
		{
			name:    "语法错误",
			sql:     "SELEC * FROM USERS",
			wantErr: models.ErrExecution,
		},
		{
			name:    "表不存在",
			sql:     "SELECT * FROM MISSING",
			wantErr: models.ErrExecution,
		},
		{
			name:    "空语句",
			sql:     "   ",
			wantErr: models.ErrExecution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestSession(t, createTestDB(t))

			out, err := executeAndRender(t, s, nil, tt.sql)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Empty(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExecuteInsertThenSelect(t *testing.T) {
	s := openTestSession(t, createTestDB(t))

	out, err := executeAndRender(t, s, nil, "INSERT INTO USERS (ID, NAME) VALUES (3, 'Carol'), (4, 'Dave')")
	require.NoError(t, err)
	assert.Equal(t, "Rows affected: 2\n", out)

	out, err = executeAndRender(t, s, nil, "SELECT COUNT(*) AS N FROM USERS")
	require.NoError(t, err)
	assert.Equal(t, "N\n4\n", out)
}

func TestExecuteCountsFollowEachStatement(t *testing.T) {
	s := openTestSession(t, createTestDB(t))

	steps := []struct {
		sql  string
		want string
	}{
		{sql: "UPDATE USERS SET NAME='X' WHERE ID=1", want: "Rows affected: 1\n"},
		{sql: "SELECT COUNT(*) AS N FROM AUDIT", want: "N\n2\n"},
		{sql: "CREATE TABLE T2 (X INTEGER)", want: "Rows affected: 0\n"},
		{sql: "DELETE FROM AUDIT", want: "Rows affected: 2\n"},
		{sql: "DROP TABLE T2", want: "Rows affected: 0\n"},
		{sql: "UPDATE USERS SET NAME='Y' WHERE ID=999", want: "Rows affected: 0\n"},
	}

	for _, step := range steps {
		out, err := executeAndRender(t, s, nil, step.sql)
		require.NoError(t, err, step.sql)
		assert.Equal(t, step.want, out, step.sql)
	}
}

// countingDriverSession 记录提交到驱动连接的每条 SQL
type countingDriverSession struct {
	Session
	queries []string
}

func (s *countingDriverSession) Raw(ctx context.Context, fn func(dc driver.Conn) error) error {
	return s.Session.Raw(ctx, func(dc driver.Conn) error {
		return fn(&recordingConn{Conn: dc, queries: &s.queries})
	})
}

// recordingConn 只暴露 Prepare，使全部提交都经过这里
type recordingConn struct {
	driver.Conn
	queries *[]string
}

func (c *recordingConn) Prepare(query string) (driver.Stmt, error) {
	*c.queries = append(*c.queries, query)
	return c.Conn.Prepare(query)
}

func TestExecuteSubmitsTabularStatementOnce(t *testing.T) {
	s := &countingDriverSession{Session: openTestSession(t, createTestDB(t))}

	out, err := executeAndRender(t, s, nil, "SELECT NAME FROM USERS WHERE ID=1")
	require.NoError(t, err)
	assert.Equal(t, "NAME\nAlice\n", out)
	assert.Equal(t, []string{"SELECT NAME FROM USERS WHERE ID=1"}, s.queries)
}

func TestExecuteEscapedFieldCountMatchesHeader(t *testing.T) {
	s := openTestSession(t, createTestDB(t))

	out, err := executeAndRender(t, s, EscapeFormatter{}, "SELECT ID, NAME, NOTE FROM USERS ORDER BY ID")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	header := strings.Count(lines[0], "\t")
	for _, line := range lines[1:] {
		assert.Equal(t, header, strings.Count(line, "\t"), line)
		assert.False(t, strings.HasSuffix(line, "\t"))
	}
	assert.Equal(t, "2\tBob\ta\\tb", lines[2])
}

func TestExecuteWithoutEscapingKeepsRawCell(t *testing.T) {
	s := openTestSession(t, createTestDB(t))

	out, err := executeAndRender(t, s, nil, "SELECT NOTE FROM USERS WHERE ID=2")
	require.NoError(t, err)
	assert.Equal(t, "NOTE\na\tb\n", out)
}

func TestExecuteRowsAreLazy(t *testing.T) {
	s := openTestSession(t, createTestDB(t))

	var seen []string
	err := NewExecutor(nil, nil).Execute(context.Background(), s, "SELECT NAME FROM USERS ORDER BY ID",
		func(outcome models.Outcome) error {
			tab, ok := outcome.(*models.TabularResult)
			require.True(t, ok)
			assert.Equal(t, models.OutcomeTabular, tab.Kind())
			assert.Equal(t, []string{"NAME"}, tab.Columns)

			require.True(t, tab.Rows.Next())
			seen = append(seen, tab.Rows.Values()[0])
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, seen)
}

func TestExecuteHandleErrorPassesThrough(t *testing.T) {
	s := openTestSession(t, createTestDB(t))

	renderErr := models.NewRenderError(errors.New("broken pipe"))
	err := NewExecutor(nil, nil).Execute(context.Background(), s, "DELETE FROM USERS WHERE ID=1",
		func(outcome models.Outcome) error {
			m, ok := outcome.(*models.MutationResult)
			require.True(t, ok)
			assert.Equal(t, int64(1), m.AffectedRows)
			return renderErr
		})
	assert.Same(t, renderErr, err)
	assert.True(t, errors.Is(err, models.ErrRender))
}

func TestExecuteClosedSession(t *testing.T) {
	s := openTestSession(t, createTestDB(t))
	require.NoError(t, s.Close())

	_, err := executeAndRender(t, s, nil, "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrExecution))
}
