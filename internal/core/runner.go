package core

import (
	"context"
	"fmt"
	"time"

	"github.com/iyuangang/sqlrun/internal/utils"
	"github.com/iyuangang/sqlrun/pkg/models"
)

// State 单次调用的状态
type State string

const (
	StateStart             State = "Start"
	StateConnecting        State = "Connecting"
	StateConnected         State = "Connected"
	StateExecuting         State = "Executing"
	StateRenderingTabular  State = "RenderingTabular"
	StateRenderingMutation State = "RenderingMutation"
	StateClosing           State = "Closing"
	StateDone              State = "Done"
	StateFailed            State = "Failed"
)

// Terminal 是否为终止状态
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// OpenFunc 获取会话，对应连接提供者
type OpenFunc func(ctx context.Context) (Session, error)

// Runner 驱动一次完整调用: 连接、执行、输出、关闭
type Runner struct {
	open     OpenFunc
	executor *Executor
	renderer *Renderer
	logger   *utils.Logger
	metrics  *utils.Metrics
	state    State
	history  []State
}

// NewRunner 创建调用驱动器
func NewRunner(open OpenFunc, executor *Executor, renderer *Renderer, logger *utils.Logger) *Runner {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	metrics := utils.NewMetrics()
	// 输出的行数直接记在本次调用的指标上
	renderer.metrics = metrics
	return &Runner{
		open:     open,
		executor: executor,
		renderer: renderer,
		logger:   logger,
		metrics:  metrics,
		state:    StateStart,
		history:  []State{StateStart},
	}
}

// State 当前状态
func (r *Runner) State() State {
	return r.state
}

// History 经过的全部状态
func (r *Runner) History() []State {
	return append([]State(nil), r.history...)
}

// Metrics 本次调用的指标
func (r *Runner) Metrics() *utils.Metrics {
	return r.metrics
}

// Run 执行一条 SQL，会话在所有路径上恰好关闭一次
func (r *Runner) Run(ctx context.Context, sql string) error {
	if r.state != StateStart {
		return fmt.Errorf("runner 只能运行一次，当前状态: %s", r.state)
	}
	r.metrics.Start()
	defer r.metrics.End()

	r.transition(StateConnecting)
	start := time.Now()
	session, err := r.open(ctx)
	if err != nil {
		if models.KindOf(err) == "" {
			err = models.NewConnectivityError(err)
		}
		return r.fail(err)
	}
	r.metrics.ConnectTime = time.Since(start)
	r.transition(StateConnected)

	closed := false
	defer func() {
		if !closed {
			session.Close()
		}
	}()

	runErr := r.execute(ctx, session, sql)

	r.transition(StateClosing)
	closed = true
	closeErr := session.Close()

	if runErr != nil {
		if closeErr != nil {
			r.logger.Warn("关闭数据库会话失败", "error", closeErr)
		}
		return r.fail(runErr)
	}
	if closeErr != nil {
		return r.fail(models.NewConnectivityError(closeErr))
	}

	r.transition(StateDone)
	r.metrics.End()
	r.logger.Info("执行完成", r.metrics.Fields()...)
	return nil
}

func (r *Runner) execute(ctx context.Context, session Session, sql string) error {
	r.transition(StateExecuting)
	start := time.Now()

	return r.executor.Execute(ctx, session, sql, func(outcome models.Outcome) error {
		r.metrics.ExecuteTime = time.Since(start)

		switch o := outcome.(type) {
		case *models.TabularResult:
			r.transition(StateRenderingTabular)
		case *models.MutationResult:
			r.metrics.AffectedRows = o.AffectedRows
			r.transition(StateRenderingMutation)
		}

		return r.renderer.Render(outcome)
	})
}

func (r *Runner) transition(next State) {
	r.logger.Debug("状态变更", "from", r.state, "to", next)
	r.state = next
	r.history = append(r.history, next)
}

func (r *Runner) fail(err error) error {
	from := r.state
	r.transition(StateFailed)
	r.logger.Error("执行失败",
		"state", from,
		"kind", models.KindOf(err),
		"error", err.Error(),
		"trace", fmt.Sprintf("%+v", err))
	return err
}
