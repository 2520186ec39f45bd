package parser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// 常见 HTML 导出里的时间格式（Telegram 的 title 属性形如 "01.01.2024 10:00:00 UTC+03:00"）
var htmlTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
}

// ParseHTMLFile 解析 HTML 格式导出的聊天记录
func ParseHTMLFile(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileFormatError{Path: path, Err: err}
	}
	defer f.Close()

	res, err := ParseHTML(f, opts)
	if err != nil {
		var ffe *FileFormatError
		if errors.As(err, &ffe) {
			ffe.Path = path
		}
		return nil, err
	}
	return res, nil
}

// ParseHTML HTML 结构可能因导出工具不同有差异，这里处理常见格式。
// 没有昵称的消息块沿用上一条的发送者（Telegram 的 joined 消息）
func ParseHTML(r io.Reader, opts Options) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &FileFormatError{Err: fmt.Errorf("parse HTML: %w", err)}
	}

	ts := NewTimestampParser(opts.DateLayouts, opts.TimeLayouts, opts.DayFirst, opts.Location)
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	var (
		messages   []MessageRecord
		report     Report
		lastSender string
		lastTime   time.Time
	)

	// 尝试多种常见的 CSS 选择器
	doc.Find(".message, .msg").Each(func(i int, s *goquery.Selection) {
		content := firstText(s, ".text, .bubble, .content, .msg-text")
		if content == "" {
			return
		}
		report.HeaderLines++
		blockNum := i + 1

		sender := firstText(s, ".from_name, .nickname, .sender, .name")
		if sender == "" {
			sender = lastSender
		}
		if sender == "" {
			report.Orphans = append(report.Orphans, Orphan{Line: blockNum, Text: content})
			return
		}

		timeStr := ""
		s.Find(".date, .time, .timestamp").EachWithBreak(func(_ int, t *goquery.Selection) bool {
			if title, ok := t.Attr("title"); ok && strings.TrimSpace(title) != "" {
				timeStr = strings.TrimSpace(title)
			} else {
				timeStr = strings.TrimSpace(t.Text())
			}
			return timeStr == ""
		})

		stamp := lastTime
		if timeStr != "" {
			parsed, err := parseHTMLTimestamp(ts, loc, timeStr)
			if err != nil {
				report.Errors = append(report.Errors, &ParseError{Line: blockNum, Raw: timeStr, Err: err})
				return
			}
			stamp = parsed
		}

		messages = append(messages, MessageRecord{
			Timestamp: stamp,
			Sender:    sender,
			Text:      content,
			Line:      blockNum,
		})
		lastSender = sender
		lastTime = stamp
	})

	if report.HeaderLines == 0 {
		return nil, &FileFormatError{Err: ErrNoHeaders}
	}
	return &Result{Pattern: "html", Messages: messages, Report: report}, nil
}

func firstText(s *goquery.Selection, selector string) string {
	text := ""
	s.Find(selector).EachWithBreak(func(_ int, cs *goquery.Selection) bool {
		text = strings.TrimSpace(cs.Text())
		return text == ""
	})
	return text
}

func parseHTMLTimestamp(ts *TimestampParser, loc *time.Location, s string) (time.Time, error) {
	// 去掉 Telegram 附带的时区后缀
	if i := strings.Index(s, " UTC"); i > 0 {
		s = s[:i]
	}
	for _, layout := range htmlTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	// 退回到文本导出的 "日期, 时间" 形式
	date, clock, ok := strings.Cut(s, ",")
	if !ok {
		date, clock, ok = strings.Cut(s, " ")
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrBadTimestamp, s)
	}
	return ts.Parse(strings.TrimSpace(date), strings.TrimSpace(clock))
}
