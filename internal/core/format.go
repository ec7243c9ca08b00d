package core

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Formatter 把驱动返回的单元格值转换为文本
type Formatter interface {
	Format(v driver.Value) string
}

// TextFormatter 默认转换: NULL 输出为 "NULL"，[]byte 按字符串输出，其余使用驱动值的默认字符串形式
type TextFormatter struct{}

func (TextFormatter) Format(v driver.Value) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

var cellEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
)

// EscapeFormatter 在 Base 的结果上转义反斜杠、制表符和换行，保证每行字段数与表头一致
type EscapeFormatter struct {
	Base Formatter
}

func (f EscapeFormatter) Format(v driver.Value) string {
	base := f.Base
	if base == nil {
		base = TextFormatter{}
	}
	return cellEscaper.Replace(base.Format(v))
}
