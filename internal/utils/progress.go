package utils

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress 在标准错误上显示已输出的行数
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress 创建行数进度指示器，总数未知，使用旋转样式
func NewProgress(w io.Writer, description string) *Progress {
	return &Progress{
		bar: progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rows"),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// Increment 记录一行
func (p *Progress) Increment() {
	if p == nil {
		return
	}
	_ = p.bar.Add64(1)
}

// Finish 结束并清除进度显示
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	_ = p.bar.Finish()
}
