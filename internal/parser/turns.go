package parser

import (
	"strings"
	"time"
)

// DefaultSeparator 合并同一轮消息时使用的分隔符
const DefaultSeparator = "\n"

// Aggregate 把消息序列转换成轮次序列。
// enabled 为 false 时每条消息单独成为一轮；为 true 时合并同一发送者的最长连续段
func Aggregate(messages []MessageRecord, enabled bool, sep string) []Turn {
	if len(messages) == 0 {
		return nil
	}

	var turns []Turn
	for _, m := range messages {
		if enabled && len(turns) > 0 && turns[len(turns)-1].Sender == m.Sender {
			last := &turns[len(turns)-1]
			last.Text += sep + m.Text
			last.End = m.Timestamp
			last.Messages = append(last.Messages, m)
			continue
		}
		turns = append(turns, Turn{
			Sender:   m.Sender,
			Text:     m.Text,
			Start:    m.Timestamp,
			End:      m.Timestamp,
			Messages: []MessageRecord{m},
		})
	}
	return turns
}

// Split 按分隔符拆分一轮的文本。消息本身不含分隔符时，片段数等于该轮的消息数
func Split(t Turn, sep string) []string {
	return strings.Split(t.Text, sep)
}

// Flatten 从轮次序列还原消息序列
func Flatten(turns []Turn) []MessageRecord {
	var messages []MessageRecord
	for _, t := range turns {
		messages = append(messages, t.Messages...)
	}
	return messages
}

// SplitConversations 按时间间隔切分对话片段，gap <= 0 时整段聊天算一段对话
func SplitConversations(turns []Turn, gap time.Duration) []Conversation {
	if len(turns) == 0 {
		return nil
	}

	var conversations []Conversation
	current := Conversation{StartAt: turns[0].Start}

	for i, t := range turns {
		if i > 0 && gap > 0 && !t.Start.IsZero() && !turns[i-1].End.IsZero() {
			if t.Start.Sub(turns[i-1].End) > gap {
				// 开始新对话
				current.EndAt = turns[i-1].End
				conversations = append(conversations, current)
				current = Conversation{StartAt: t.Start}
			}
		}
		current.Turns = append(current.Turns, t)
	}

	// 最后一段
	current.EndAt = current.Turns[len(current.Turns)-1].End
	conversations = append(conversations, current)

	return conversations
}

// DefaultPlaceholders 导出文件中代替媒体或已删除内容的占位文本
var DefaultPlaceholders = []string{
	"<Media omitted>",
	"image omitted", "video omitted", "audio omitted",
	"sticker omitted", "document omitted", "GIF omitted",
	"This message was deleted", "You deleted this message",
}

// DropPlaceholders 过滤正文只有占位文本的消息
func DropPlaceholders(messages []MessageRecord, placeholders []string) ([]MessageRecord, int) {
	if len(placeholders) == 0 {
		return messages, 0
	}
	skip := make(map[string]bool, len(placeholders))
	for _, p := range placeholders {
		skip[p] = true
	}

	filtered := make([]MessageRecord, 0, len(messages))
	for _, m := range messages {
		if skip[strings.TrimSpace(m.Text)] {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered, len(messages) - len(filtered)
}
