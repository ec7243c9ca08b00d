package core

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"

	"github.com/iyuangang/sqlrun/internal/db"
	"github.com/iyuangang/sqlrun/internal/utils"
	"github.com/iyuangang/sqlrun/pkg/models"
)

// Session 执行器需要的会话能力，由 *db.Session 实现
type Session interface {
	Raw(ctx context.Context, fn func(dc driver.Conn) error) error
	Affected(ctx context.Context, dc driver.Conn, rows driver.Rows) (int64, error)
	Close() error
}

// Executor 语句执行器
type Executor struct {
	formatter Formatter
	logger    *utils.Logger
}

// NewExecutor 创建新的执行器，formatter 为空时使用 TextFormatter
func NewExecutor(formatter Formatter, logger *utils.Logger) *Executor {
	if formatter == nil {
		formatter = TextFormatter{}
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Executor{formatter: formatter, logger: logger}
}

// Execute 提交一次 SQL 并把分类后的结果交给 handle
//
// 是否为结果集只由驱动返回的列信息决定。结果集的行在 handle 中按需读取，
// outcome 只在 handle 执行期间有效。handle 返回的错误原样返回，
// 数据库相关的错误包装为 ExecutionError。不重试。
func (e *Executor) Execute(ctx context.Context, s Session, sql string, handle func(models.Outcome) error) error {
	if strings.TrimSpace(sql) == "" {
		return models.NewExecutionError(fmt.Errorf("SQL语句不能为空"))
	}

	err := s.Raw(ctx, func(dc driver.Conn) error {
		rows, err := db.Query(ctx, dc, sql)
		if err != nil {
			e.logger.Error("SQL执行失败", "sql", sql, "error", err)
			return models.NewExecutionError(err)
		}
		defer func() {
			if cerr := rows.Close(); cerr != nil {
				e.logger.Warn("关闭结果集失败", "error", cerr)
			}
		}()

		columns := rows.Columns()
		if len(columns) > 0 {
			e.logger.Debug("返回结果集", "columns", len(columns))
			return handle(&models.TabularResult{
				Columns: append([]string(nil), columns...),
				Rows:    newCursor(rows, len(columns), e.formatter),
			})
		}

		for {
			if err := rows.Next(nil); err != nil {
				if err != io.EOF {
					return models.NewExecutionError(err)
				}
				break
			}
		}

		affected, err := s.Affected(ctx, dc, rows)
		if err != nil {
			return models.NewExecutionError(err)
		}
		e.logger.Debug("语句无结果集", "affected_rows", affected)
		return handle(&models.MutationResult{AffectedRows: affected})
	})

	if err != nil && models.KindOf(err) == "" {
		return models.NewExecutionError(err)
	}
	return err
}
