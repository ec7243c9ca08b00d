package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/iyuangang/sqlrun/pkg/models"
)

// Query 在驱动连接上提交一次 SQL 文本，不带参数
//
// 优先使用 driver.QueryerContext，驱动不支持时退回到 Prepare + Query，
// 此时返回的 Rows 在关闭时一并关闭语句。
func Query(ctx context.Context, dc driver.Conn, query string) (driver.Rows, error) {
	if q, ok := dc.(driver.QueryerContext); ok {
		rows, err := q.QueryContext(ctx, query, nil)
		if !errors.Is(err, driver.ErrSkip) {
			return rows, err
		}
	}

	var (
		stmt driver.Stmt
		err  error
	)
	if p, ok := dc.(driver.ConnPrepareContext); ok {
		stmt, err = p.PrepareContext(ctx, query)
	} else {
		stmt, err = dc.Prepare(query)
	}
	if err != nil {
		return nil, err
	}

	var rows driver.Rows
	if sq, ok := stmt.(driver.StmtQueryContext); ok {
		rows, err = sq.QueryContext(ctx, nil)
	} else {
		rows, err = stmt.Query(nil) //nolint:staticcheck // 驱动未实现 StmtQueryContext
	}
	if err != nil {
		stmt.Close()
		return nil, err
	}
	return &stmtRows{Rows: rows, stmt: stmt}, nil
}

type stmtRows struct {
	driver.Rows
	stmt driver.Stmt
}

func (r *stmtRows) Close() error {
	err := r.Rows.Close()
	if cerr := r.stmt.Close(); err == nil {
		err = cerr
	}
	return err
}

// resultRows lib/pq 的 rows 在命令结束后携带 CommandComplete 结果
type resultRows interface {
	Result() driver.Result
}

// Counter 获取无结果集语句的影响行数，只在语句执行之后查询
//
// 每个会话持有一个 Counter。CountTotal 方言记录上一次看到的连接累计变更数，
// 新连接从 0 开始，因此会话内的全部语句都必须经过同一个 Counter。
type Counter struct {
	dialect Dialect
	total   int64
}

// NewCounter 为一个新打开的连接创建 Counter
func NewCounter(dialect Dialect) *Counter {
	return &Counter{dialect: dialect}
}

// Affected 在语句的 rows 已读完后调用，返回驱动报告的影响行数，
// 驱动无法提供时返回 models.NoCount
func (c *Counter) Affected(ctx context.Context, dc driver.Conn, rows driver.Rows) (int64, error) {
	if rr, ok := rows.(resultRows); ok {
		if res := rr.Result(); res != nil {
			if n, err := res.RowsAffected(); err == nil {
				return n, nil
			}
		}
	}

	if c.dialect.CountQuery == "" {
		return models.NoCount, nil
	}

	values, err := queryInts(ctx, dc, c.dialect.CountQuery)
	if err != nil {
		return 0, err
	}
	if !c.dialect.CountTotal {
		return values[0], nil
	}
	if len(values) != 2 {
		return 0, fmt.Errorf("%s: 期望两列，实际 %d 列", c.dialect.CountQuery, len(values))
	}

	// changes() 在 DDL 之后仍是上一条 DML 的值，累计值不变时按 0 处理
	changes, total := values[0], values[1]
	moved := total != c.total
	c.total = total
	if !moved {
		return 0, nil
	}
	return changes, nil
}

// queryInts 读取查询第一行的全部列并转换为整数
func queryInts(ctx context.Context, dc driver.Conn, query string) ([]int64, error) {
	rows, err := Query(ctx, dc, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	width := len(rows.Columns())
	if width == 0 {
		return nil, fmt.Errorf("%s: 没有返回列", query)
	}
	dest := make([]driver.Value, width)
	if err := rows.Next(dest); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%s: 没有返回数据", query)
		}
		return nil, err
	}

	values := make([]int64, width)
	for i, v := range dest {
		if values[i], err = toInt64(v); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func toInt64(v driver.Value) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	case nil:
		return models.NoCount, nil
	default:
		return 0, fmt.Errorf("无法将 %T 转换为整数", v)
	}
}
