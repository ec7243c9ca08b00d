package utils

import (
	"fmt"
	"time"
)

// Metrics 单次调用的性能指标
type Metrics struct {
	StartTime    time.Time
	EndTime      time.Time
	ConnectTime  time.Duration
	ExecuteTime  time.Duration
	RowCount     int64
	AffectedRows int64
}

// NewMetrics 创建新的指标收集器
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime: time.Now(),
	}
}

// Start 开始收集指标
func (m *Metrics) Start() {
	m.StartTime = time.Now()
}

// End 结束收集指标
func (m *Metrics) End() {
	m.EndTime = time.Now()
}

// AddRow 记录一行已输出
func (m *Metrics) AddRow() {
	m.RowCount++
}

// Duration 获取总执行时间
func (m *Metrics) Duration() time.Duration {
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

// Fields 以键值对形式返回指标，便于写日志
func (m *Metrics) Fields() []interface{} {
	return []interface{}{
		"duration", m.Duration(),
		"connect_time", m.ConnectTime,
		"execute_time", m.ExecuteTime,
		"rows", m.RowCount,
		"affected_rows", m.AffectedRows,
	}
}

// String 获取指标字符串表示
func (m *Metrics) String() string {
	return fmt.Sprintf("总耗时: %s, 连接: %s, 执行: %s, 输出行数: %d",
		FormatDuration(m.Duration()),
		FormatDuration(m.ConnectTime),
		FormatDuration(m.ExecuteTime),
		m.RowCount,
	)
}

// FormatDuration 格式化持续时间
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
