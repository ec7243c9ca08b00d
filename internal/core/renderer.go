package core

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iyuangang/sqlrun/internal/utils"
	"github.com/iyuangang/sqlrun/pkg/models"
)

// Renderer 把执行结果以制表符分隔的文本逐行写出
type Renderer struct {
	w        io.Writer
	progress *utils.Progress
	metrics  *utils.Metrics
}

// NewRenderer 创建输出器，progress 可以为 nil
func NewRenderer(w io.Writer, progress *utils.Progress) *Renderer {
	return &Renderer{w: w, progress: progress, metrics: utils.NewMetrics()}
}

// Rows 已写出的数据行数(不含表头)
func (r *Renderer) Rows() int64 {
	return r.metrics.RowCount
}

// Render 写出一个结果
//
// 每行在取得后立即写出，出错前已写出的行保留在输出中。
// 写出失败返回 RenderError，读取行失败返回 ExecutionError。
func (r *Renderer) Render(outcome models.Outcome) error {
	switch o := outcome.(type) {
	case *models.TabularResult:
		return r.renderTabular(o)
	case *models.MutationResult:
		return r.writeLine("Rows affected: " + strconv.FormatInt(o.AffectedRows, 10))
	default:
		return models.NewRenderError(fmt.Errorf("未知的结果类型: %T", outcome))
	}
}

func (r *Renderer) renderTabular(t *models.TabularResult) error {
	defer r.progress.Finish()

	if err := r.writeLine(strings.Join(t.Columns, "\t")); err != nil {
		return err
	}

	for t.Rows.Next() {
		if err := r.writeLine(strings.Join(t.Rows.Values(), "\t")); err != nil {
			return err
		}
		r.metrics.AddRow()
		r.progress.Increment()
	}

	if err := t.Rows.Err(); err != nil {
		if models.KindOf(err) == "" {
			return models.NewExecutionError(err)
		}
		return err
	}
	return nil
}

func (r *Renderer) writeLine(line string) error {
	if _, err := io.WriteString(r.w, line+"\n"); err != nil {
		return models.NewRenderError(err)
	}
	return nil
}
