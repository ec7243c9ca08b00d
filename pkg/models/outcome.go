package models

// NoCount 驱动无法提供受影响行数时的哨兵值
const NoCount int64 = -1

// OutcomeKind 执行结果类型
type OutcomeKind string

const (
	OutcomeTabular  OutcomeKind = "tabular"
	OutcomeMutation OutcomeKind = "mutation"
)

// Outcome 单条语句的执行结果，只能是 *TabularResult 或 *MutationResult 之一
type Outcome interface {
	Kind() OutcomeKind
}

// RowIterator 只读、单向、不可重置的行序列
//
// Next 推进到下一行并在没有更多行(或出错)时返回 false，
// Values 返回当前行的文本值，调用方不得在下一次 Next 之后继续持有该切片。
type RowIterator interface {
	Next() bool
	Values() []string
	Err() error
}

// TabularResult 结果集
type TabularResult struct {
	Columns []string
	Rows    RowIterator
}

// Kind 实现 Outcome
func (r *TabularResult) Kind() OutcomeKind {
	return OutcomeTabular
}

// MutationResult 无结果集语句的受影响行数
type MutationResult struct {
	AffectedRows int64
}

// Kind 实现 Outcome
func (r *MutationResult) Kind() OutcomeKind {
	return OutcomeMutation
}

// SliceRows 基于内存切片的 RowIterator，用于测试和可重放的结果
type SliceRows struct {
	rows [][]string
	pos  int
	err  error
}

// NewSliceRows 创建内存行序列，err 会在所有行读完后由 Err 返回
func NewSliceRows(rows [][]string, err error) *SliceRows {
	return &SliceRows{rows: rows, pos: -1, err: err}
}

func (s *SliceRows) Next() bool {
	if s.pos+1 >= len(s.rows) {
		s.pos = len(s.rows)
		return false
	}
	s.pos++
	return true
}

func (s *SliceRows) Values() []string {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return nil
	}
	return s.rows[s.pos]
}

func (s *SliceRows) Err() error {
	if s.pos >= len(s.rows) {
		return s.err
	}
	return nil
}
