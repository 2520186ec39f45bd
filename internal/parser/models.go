package parser

import (
	"strings"
	"time"
)

// MessageRecord 单条聊天消息，解析后不再修改
type MessageRecord struct {
	Timestamp time.Time
	Sender    string
	Text      string
	Line      int // 消息头所在的源文件行号（从 1 开始）
}

// Turn 同一发送者连续的若干条消息合并成的一轮发言
type Turn struct {
	Sender   string
	Text     string
	Start    time.Time
	End      time.Time
	Messages []MessageRecord
}

// Conversation 一段完整对话（按时间间隔切分）
type Conversation struct {
	Turns   []Turn
	StartAt time.Time
	EndAt   time.Time
}

// FormatAsExample 将对话格式化为示例文本，每轮一行 "发送者：内容"
func (c *Conversation) FormatAsExample() string {
	var b strings.Builder
	for _, t := range c.Turns {
		b.WriteString(t.Sender)
		b.WriteString("：")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// MessageCount 对话包含的原始消息数
func (c *Conversation) MessageCount() int {
	n := 0
	for _, t := range c.Turns {
		n += len(t.Messages)
	}
	return n
}
