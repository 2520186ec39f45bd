// Package chat 把解析结果、轮次和发送者注册表组合成一个可操作的聊天记录
package chat

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/liao/chat-export/internal/export"
	"github.com/liao/chat-export/internal/parser"
	"github.com/liao/chat-export/internal/subject"
)

const (
	InputAuto = "auto"
	InputText = "text"
	InputHTML = "html"
	InputEnc  = "enc"
)

// Options 加载聊天记录的配置
type Options struct {
	Parse        parser.Options
	Input        string // auto / text / html / enc
	DecryptKey   string
	Turns        bool
	Separator    string
	InferMain    bool
	Placeholders []string // 正文完全等于这些文本的消息会被丢弃
}

// DefaultOptions 合并轮次，自动推断主发送者
func DefaultOptions() Options {
	return Options{
		Parse:     parser.DefaultOptions(),
		Input:     InputAuto,
		Turns:     true,
		Separator: parser.DefaultSeparator,
		InferMain: true,
	}
}

// Chat 内存中的聊天记录。改名和设置主发送者会修改状态，导出只读
type Chat struct {
	mu sync.RWMutex

	messages  []parser.MessageRecord
	turns     []parser.Turn
	registry  *subject.Registry
	report    parser.Report
	pattern   string
	dropped   int
	aggregate bool
	sep       string
}

// Load 从文件加载，按扩展名或 opts.Input 选择解析方式
func Load(path string, opts Options) (*Chat, error) {
	input := opts.Input
	if input == "" || input == InputAuto {
		input = detectInput(path)
	}

	var (
		res *parser.Result
		err error
	)
	switch input {
	case InputEnc:
		if opts.DecryptKey == "" {
			return nil, fmt.Errorf("decrypt key required for %s", path)
		}
		plaintext, derr := parser.DecryptFile(path, opts.DecryptKey)
		if derr != nil {
			return nil, derr
		}
		res, err = parser.ParseBytes(plaintext, opts.Parse)
		// 清除内存中的明文
		clear(plaintext)
		if err != nil {
			return nil, fmt.Errorf("parse decrypted %s: %w", path, err)
		}
	case InputHTML:
		res, err = parser.ParseHTMLFile(path, opts.Parse)
	case InputText:
		res, err = parser.ParseFile(path, opts.Parse)
	default:
		return nil, fmt.Errorf("unknown input format: %q", input)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("parsed chat", "file", path, "input", input, "pattern", res.Pattern, "messages", len(res.Messages))
	return New(res, opts), nil
}

// New 从解析结果构建
func New(res *parser.Result, opts Options) *Chat {
	sep := opts.Separator
	if sep == "" {
		sep = parser.DefaultSeparator
	}

	messages, dropped := parser.DropPlaceholders(res.Messages, opts.Placeholders)
	if dropped > 0 {
		slog.Info("dropped placeholder messages", "count", dropped)
	}

	c := &Chat{
		messages:  messages,
		report:    res.Report,
		pattern:   res.Pattern,
		dropped:   dropped,
		aggregate: opts.Turns,
		sep:       sep,
	}
	c.turns = parser.Aggregate(messages, c.aggregate, sep)
	c.registry = subject.NewRegistry(senders(messages), opts.InferMain)
	return c
}

func detectInput(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".enc":
		return InputEnc
	case ".html", ".htm":
		return InputHTML
	default:
		return InputText
	}
}

func senders(messages []parser.MessageRecord) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Sender)
	}
	return out
}

// Subjects 所有发送者，按首次出现排序
func (c *Chat) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Subjects()
}

// Messages 消息快照
func (c *Chat) Messages() []parser.MessageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.messages)
}

// Turns 轮次快照；未开启合并时每条消息一轮
func (c *Chat) Turns() []parser.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTurns(c.turns)
}

// cloneTurns 连同每轮的 Messages 一起复制，调用方修改快照不影响内部状态
func cloneTurns(turns []parser.Turn) []parser.Turn {
	out := slices.Clone(turns)
	for i := range out {
		out[i].Messages = slices.Clone(out[i].Messages)
	}
	return out
}

// Aggregated 是否开启了轮次合并
func (c *Chat) Aggregated() bool {
	return c.aggregate
}

// Retrieve 按轮次返回平行的 (发送者, 文本) 列表
func (c *Chat) Retrieve() (senders []string, texts []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.turns {
		senders = append(senders, t.Sender)
		texts = append(texts, t.Text)
	}
	return senders, texts
}

// Report 解析期间收集的非致命问题
func (c *Chat) Report() parser.Report {
	return c.report
}

// Pattern 实际使用的消息头格式
func (c *Chat) Pattern() string {
	return c.pattern
}

// DroppedPlaceholders 被过滤掉的占位消息数
func (c *Chat) DroppedPlaceholders() int {
	return c.dropped
}

// MainSubject 当前主发送者
func (c *Chat) MainSubject() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.MainSubject()
}

// SetMainSubject 名字不存在时返回 subject.UnknownSubjectError
func (c *Chat) SetMainSubject(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.registry.SetMainSubject(name); err != nil {
		return err
	}
	slog.Debug("main subject set", "name", name)
	return nil
}

// ReplaceSubject 把所有 old 发送者改为 new。
// 先在副本上完成全部修改再一次性替换，失败时状态不变
func (c *Chat) ReplaceSubject(old, new string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	registry := c.registry.Clone()
	if err := registry.Rename(old, new); err != nil {
		return err
	}

	messages := slices.Clone(c.messages)
	changed := 0
	for i := range messages {
		if messages[i].Sender == old {
			messages[i].Sender = new
			changed++
		}
	}
	// 改名可能让相邻的两段变成同一发送者，重新合并保证每轮都是最长连续段
	turns := parser.Aggregate(messages, c.aggregate, c.sep)

	c.messages = messages
	c.turns = turns
	c.registry = registry

	slog.Debug("subject replaced", "old", old, "new", new, "messages", changed)
	return nil
}

// Dataset 导出用的只读快照
func (c *Chat) Dataset() export.Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	main, ok := c.registry.MainSubject()
	return export.Dataset{
		Messages:   slices.Clone(c.messages),
		Turns:      cloneTurns(c.turns),
		Aggregated: c.aggregate,
		Subjects:   c.registry.Subjects(),
		Main:       main,
		HasMain:    ok,
		Separator:  c.sep,
	}
}
