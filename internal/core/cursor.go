package core

import (
	"database/sql/driver"
	"io"

	"github.com/iyuangang/sqlrun/pkg/models"
)

// cursor 按需从驱动读取一行并转换为文本，只保留当前行
type cursor struct {
	rows      driver.Rows
	dest      []driver.Value
	values    []string
	formatter Formatter
	err       error
	done      bool
}

func newCursor(rows driver.Rows, width int, formatter Formatter) *cursor {
	return &cursor{
		rows:      rows,
		dest:      make([]driver.Value, width),
		values:    make([]string, width),
		formatter: formatter,
	}
}

func (c *cursor) Next() bool {
	if c.done {
		return false
	}
	for i := range c.dest {
		c.dest[i] = nil
	}
	if err := c.rows.Next(c.dest); err != nil {
		c.done = true
		if err != io.EOF {
			c.err = models.NewExecutionError(err)
		}
		return false
	}
	for i, v := range c.dest {
		c.values[i] = c.formatter.Format(v)
	}
	return true
}

func (c *cursor) Values() []string {
	return c.values
}

func (c *cursor) Err() error {
	return c.err
}
