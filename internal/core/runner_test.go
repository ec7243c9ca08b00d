package core

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyuangang/sqlrun/internal/db"
	"github.com/iyuangang/sqlrun/pkg/models"
)

// countingSession 记录 Close 调用次数
type countingSession struct {
	Session
	closes   int
	closeErr error
	raws     int
}

func (s *countingSession) Raw(ctx context.Context, fn func(dc driver.Conn) error) error {
	s.raws++
	return s.Session.Raw(ctx, fn)
}

func (s *countingSession) Close() error {
	s.closes++
	if err := s.Session.Close(); err != nil {
		return err
	}
	return s.closeErr
}

func countingOpener(t *testing.T, closeErr error) (OpenFunc, *countingSession) {
	t.Helper()
	cs := &countingSession{closeErr: closeErr}
	open := sqliteOpener(createTestDB(t))
	return func(ctx context.Context) (Session, error) {
		s, err := open(ctx)
		if err != nil {
			return nil, err
		}
		cs.Session = s
		return cs, nil
	}, cs
}

func newTestRunner(open OpenFunc, out *bytes.Buffer) *Runner {
	return NewRunner(open, NewExecutor(nil, nil), NewRenderer(out, nil), nil)
}

func TestRunnerRun(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		want    string
		history []State
		wantErr error
	}{
		{
			name: "查询",
			sql:  "SELECT ID, NAME FROM USERS ORDER BY ID",
			want: "ID\tNAME\n1\tAlice\n2\tBob\n",
			history: []State{StateStart, StateConnecting, StateConnected, StateExecuting,
				StateRenderingTabular, StateClosing, StateDone},
		},
		{
			name: "更新",
			sql:  "UPDATE USERS SET NAME='X' WHERE ID=1",
			want: "Rows affected: 1\n",
			history: []State{StateStart, StateConnecting, StateConnected, StateExecuting,
				StateRenderingMutation, StateClosing, StateDone},
		},
		{
			name:    "语法错误",
			sql:     "SELEC * FROM USERS",
			wantErr: models.ErrExecution,
			history: []State{StateStart, StateConnecting, StateConnected, StateExecuting,
				StateClosing, StateFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open, cs := countingOpener(t, nil)
			var out bytes.Buffer
			r := newTestRunner(open, &out)

			err := r.Run(context.Background(), tt.sql)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Equal(t, StateFailed, r.State())
			} else {
				require.NoError(t, err)
				assert.Equal(t, StateDone, r.State())
			}

			assert.Equal(t, tt.want, out.String())
			assert.Equal(t, tt.history, r.History())
			assert.Equal(t, 1, cs.raws)
			assert.Equal(t, 1, cs.closes)
			assert.True(t, r.State().Terminal())
		})
	}
}

func TestRunnerConnectFailure(t *testing.T) {
	opened := 0
	open := func(ctx context.Context) (Session, error) {
		opened++
		return nil, errors.New("dial tcp 10.0.0.1:1521: i/o timeout")
	}

	var out bytes.Buffer
	r := newTestRunner(open, &out)

	err := r.Run(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConnectivity))
	assert.Contains(t, err.Error(), "i/o timeout")
	assert.Equal(t, 1, opened)
	assert.Empty(t, out.String())
	assert.Equal(t, []State{StateStart, StateConnecting, StateFailed}, r.History())
}

func TestRunnerProviderFailure(t *testing.T) {
	provider := db.NewProvider(db.DefaultDialects(), nil)
	cfg := createTestDB(t)
	cfg.Driver = "unknown"

	open := func(ctx context.Context) (Session, error) {
		s, err := provider.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	r := newTestRunner(open, &bytes.Buffer{})
	err := r.Run(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, models.KindConnectivity, models.KindOf(err))
}

func TestRunnerRenderFailureClosesOnce(t *testing.T) {
	open, cs := countingOpener(t, nil)
	w := &failingWriter{n: 1}
	r := NewRunner(open, NewExecutor(nil, nil), NewRenderer(w, nil), nil)

	err := r.Run(context.Background(), "SELECT ID FROM USERS ORDER BY ID")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRender))
	assert.Equal(t, "ID\n", w.buf.String())
	assert.Equal(t, 1, cs.closes)
	assert.Equal(t, StateFailed, r.State())
}

func TestRunnerCloseFailure(t *testing.T) {
	t.Run("成功路径上的关闭错误", func(t *testing.T) {
		open, cs := countingOpener(t, errors.New("close failed"))
		var out bytes.Buffer
		r := newTestRunner(open, &out)

		err := r.Run(context.Background(), "SELECT 1 AS ONE")
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrConnectivity))
		assert.Equal(t, "ONE\n1\n", out.String())
		assert.Equal(t, 1, cs.closes)
		assert.Equal(t, StateFailed, r.State())
	})

	t.Run("执行错误优先", func(t *testing.T) {
		open, cs := countingOpener(t, errors.New("close failed"))
		r := newTestRunner(open, &bytes.Buffer{})

		err := r.Run(context.Background(), "SELEC 1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrExecution))
		assert.Equal(t, 1, cs.closes)
	})
}

func TestRunnerRunsOnce(t *testing.T) {
	open, cs := countingOpener(t, nil)
	r := newTestRunner(open, &bytes.Buffer{})

	require.NoError(t, r.Run(context.Background(), "SELECT 1"))
	require.Error(t, r.Run(context.Background(), "SELECT 1"))
	assert.Equal(t, 1, cs.closes)
}

func TestRunnerMetrics(t *testing.T) {
	open, _ := countingOpener(t, nil)
	r := newTestRunner(open, &bytes.Buffer{})

	require.NoError(t, r.Run(context.Background(), "SELECT ID FROM USERS"))
	m := r.Metrics()
	assert.Equal(t, int64(2), m.RowCount)
	assert.False(t, m.EndTime.IsZero())
	assert.GreaterOrEqual(t, m.Duration(), m.ExecuteTime)
}
