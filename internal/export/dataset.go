// Package export 把消息和轮次投影成各种输出格式。投影都是纯函数，不修改输入
package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/liao/chat-export/internal/parser"
)

// ErrMissingMainSubject 需要主发送者的导出在没有主发送者时返回
var ErrMissingMainSubject = errors.New("main subject is not set")

// MissingMainSubjectError 带上导出格式
type MissingMainSubjectError struct {
	Format string
}

func (e *MissingMainSubjectError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Format, ErrMissingMainSubject)
}

func (e *MissingMainSubjectError) Is(target error) bool {
	return target == ErrMissingMainSubject
}

// Dataset 导出的输入快照
type Dataset struct {
	Messages   []parser.MessageRecord
	Turns      []parser.Turn
	Aggregated bool
	Subjects   []string
	Main       string
	HasMain    bool
	Separator  string
}

// Options 导出选项
type Options struct {
	// Gap 大于 0 时按时间间隔把轮次切成多段对话，用于 user/assistant 格式
	Gap time.Duration
}

// Stats 导出统计。Dropped 是不符合 "非主发送者 -> 主发送者" 交替规则而被丢弃的轮次数
type Stats struct {
	Rows    int
	Pairs   int
	Dropped int
}

func (d Dataset) mainSubject(format string) (string, error) {
	if !d.HasMain || d.Main == "" {
		return "", &MissingMainSubjectError{Format: format}
	}
	return d.Main, nil
}

func (d Dataset) separator() string {
	if d.Separator == "" {
		return parser.DefaultSeparator
	}
	return d.Separator
}
