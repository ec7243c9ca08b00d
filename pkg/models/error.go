package models

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrorKind 错误分类
type ErrorKind string

const (
	KindConnectivity ErrorKind = "connectivity"
	KindExecution    ErrorKind = "execution"
	KindRender       ErrorKind = "render"
)

// 分类哨兵错误，可用 errors.Is 判断
var (
	ErrConnectivity = errors.New("连接数据库失败")
	ErrExecution    = errors.New("执行SQL失败")
	ErrRender       = errors.New("输出结果失败")
)

// Error 分类后的致命错误，Err 携带底层错误和调用栈
type Error struct {
	Kind ErrorKind
	Err  error
}

func newError(kind ErrorKind, err error) *Error {
	if err == nil {
		err = errors.New("unknown error")
	}
	return &Error{Kind: kind, Err: pkgerrors.WithStack(err)}
}

// NewConnectivityError 获取连接阶段的错误
func NewConnectivityError(err error) *Error {
	return newError(KindConnectivity, err)
}

// NewExecutionError 数据库拒绝或执行失败
func NewExecutionError(err error) *Error {
	return newError(KindExecution, err)
}

// NewRenderError 转换或写出结果失败
func NewRenderError(err error) *Error {
	return newError(KindRender, err)
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.sentinel().Error(), pkgerrors.Cause(e.Err).Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrExecution) 等判断成立
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

// Format 支持 %+v 输出调用栈
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s\n%+v", e.Error(), e.Err)
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindConnectivity:
		return ErrConnectivity
	case KindRender:
		return ErrRender
	default:
		return ErrExecution
	}
}

// KindOf 返回错误分类，未分类的错误返回空字符串
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
