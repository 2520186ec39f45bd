package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHeaders 文件里没有任何符合消息头格式的行
	ErrNoHeaders = errors.New("no message header lines found")
	// ErrBadTimestamp 消息头形状正确但时间戳无法解析
	ErrBadTimestamp = errors.New("unparseable timestamp")
)

// FileFormatError 源文件无法打开或无法识别，属于致命错误
type FileFormatError struct {
	Path string
	Err  error
}

func (e *FileFormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("file format: %v", e.Err)
	}
	return fmt.Sprintf("file format %s: %v", e.Path, e.Err)
}

func (e *FileFormatError) Unwrap() error { return e.Err }

// ParseError 单行解析失败。该条消息被跳过，不影响整体解析
type ParseError struct {
	Line    int
	Raw     string
	Dropped int // 随该消息一起丢弃的续行数
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Orphan 出现在第一条消息头之前的续行，没有可附着的消息
type Orphan struct {
	Line int
	Text string
}

// Report 解析过程中收集到的非致命问题
type Report struct {
	HeaderLines int
	Errors      []*ParseError
	Orphans     []Orphan
}

// Clean 没有任何非致命问题
func (r Report) Clean() bool {
	return len(r.Errors) == 0 && len(r.Orphans) == 0
}
