package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options 文本解析配置
type Options struct {
	Format      string // auto / android / ios / custom
	HeaderRegex string // Format 为 custom 时使用
	DateLayouts []string
	TimeLayouts []string
	DayFirst    bool
	Location    *time.Location
}

// DefaultOptions 自动识别格式，月份在前，UTC
func DefaultOptions() Options {
	return Options{Format: FormatAuto, Location: time.UTC}
}

// Result 一次解析的完整结果
type Result struct {
	Pattern  string
	Messages []MessageRecord
	Report   Report
}

// ParseFile 解析导出的聊天文本文件，整个文件一次读入内存
func ParseFile(path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileFormatError{Path: path, Err: err}
	}
	res, err := ParseBytes(data, opts)
	if err != nil {
		var ffe *FileFormatError
		if errors.As(err, &ffe) {
			ffe.Path = path
		}
		return nil, err
	}
	return res, nil
}

// ParseBytes 解析内存中的聊天文本（例如解密后的内容）
func ParseBytes(data []byte, opts Options) (*Result, error) {
	return Parse(bytes.NewReader(data), opts)
}

// Parse 单次线性扫描：消息头开启一条新消息，其余行追加到当前消息
func Parse(r io.Reader, opts Options) (*Result, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, &FileFormatError{Err: fmt.Errorf("read lines: %w", err)}
	}

	pattern, err := resolvePattern(opts, lines)
	if err != nil {
		return nil, err
	}
	clf := NewClassifier(pattern)
	ts := NewTimestampParser(opts.DateLayouts, opts.TimeLayouts, opts.DayFirst, opts.Location)

	var (
		messages []MessageRecord
		report   Report
		current  *MessageRecord
		skipping *ParseError
		buf      strings.Builder
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimRight(buf.String(), "\n")
		messages = append(messages, *current)
		current = nil
	}

	for i, line := range lines {
		lineNum := i + 1
		c := clf.Classify(line)

		if c.Kind == KindHeader {
			report.HeaderLines++
			flush()
			skipping = nil

			t, err := ts.Parse(c.Date, c.Time)
			if err != nil {
				skipping = &ParseError{Line: lineNum, Raw: NormalizeLine(line), Err: err}
				report.Errors = append(report.Errors, skipping)
				continue
			}
			current = &MessageRecord{Timestamp: t, Sender: c.Sender, Line: lineNum}
			buf.Reset()
			buf.WriteString(c.Text)
			continue
		}

		// 续行
		switch {
		case current != nil:
			buf.WriteString("\n")
			buf.WriteString(c.Text)
		case skipping != nil:
			skipping.Dropped++
		case strings.TrimSpace(c.Text) != "":
			report.Orphans = append(report.Orphans, Orphan{Line: lineNum, Text: c.Text})
		}
	}
	flush()

	if report.HeaderLines == 0 {
		return nil, &FileFormatError{Err: ErrNoHeaders}
	}

	slog.Debug("parsed chat text",
		"pattern", pattern.Name,
		"lines", len(lines),
		"messages", len(messages),
		"parse_errors", len(report.Errors),
		"orphans", len(report.Orphans),
	)

	return &Result{Pattern: pattern.Name, Messages: messages, Report: report}, nil
}

func resolvePattern(opts Options, lines []string) (*Pattern, error) {
	switch opts.Format {
	case "", FormatAuto:
		return DetectPattern(lines), nil
	default:
		return PatternFor(opts.Format, opts.HeaderRegex)
	}
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 单行最长 10MB
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
