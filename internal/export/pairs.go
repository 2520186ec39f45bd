package export

import (
	"strings"

	"github.com/liao/chat-export/internal/parser"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PromptCompletion 一组 prompt/completion
type PromptCompletion struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// RoleMessage 带角色的一条消息
type RoleMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Exchange 一段对话对应的消息数组
type Exchange struct {
	Messages []RoleMessage `json:"messages"`
}

// alternate 从左到右扫描：非主发送者紧跟主发送者的两轮组成一对，其余轮次丢弃
func alternate(turns []parser.Turn, main string) (pairs [][2]parser.Turn, dropped int) {
	for i := 0; i < len(turns); {
		if i+1 < len(turns) && turns[i].Sender != main && turns[i+1].Sender == main {
			pairs = append(pairs, [2]parser.Turn{turns[i], turns[i+1]})
			i += 2
			continue
		}
		dropped++
		i++
	}
	return pairs, dropped
}

// PromptCompletionPairs 需要主发送者
func PromptCompletionPairs(d Dataset) ([]PromptCompletion, Stats, error) {
	main, err := d.mainSubject(FormatPromptCompletion)
	if err != nil {
		return nil, Stats{}, err
	}

	pairs, dropped := alternate(d.Turns, main)
	out := make([]PromptCompletion, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, PromptCompletion{Prompt: p[0].Text, Completion: p[1].Text})
	}
	return out, Stats{Rows: len(out), Pairs: len(out), Dropped: dropped}, nil
}

// UserAssistantPairs 每段对话一行，包含该段内所有 user/assistant 交替对
func UserAssistantPairs(d Dataset, opts Options) ([]Exchange, Stats, error) {
	main, err := d.mainSubject(FormatUserAssistant)
	if err != nil {
		return nil, Stats{}, err
	}

	var (
		out   []Exchange
		stats Stats
	)
	for _, conv := range parser.SplitConversations(d.Turns, opts.Gap) {
		pairs, dropped := alternate(conv.Turns, main)
		stats.Dropped += dropped
		if len(pairs) == 0 {
			continue
		}
		ex := Exchange{Messages: make([]RoleMessage, 0, len(pairs)*2)}
		for _, p := range pairs {
			ex.Messages = append(ex.Messages,
				RoleMessage{Role: RoleUser, Content: p[0].Text},
				RoleMessage{Role: RoleAssistant, Content: p[1].Text},
			)
		}
		stats.Pairs += len(pairs)
		out = append(out, ex)
	}
	stats.Rows = len(out)
	return out, stats, nil
}

// UserAssistantSingle 每段对话压缩成一问一答：
// 非主发送者的轮次按顺序拼成 user，主发送者的轮次按顺序拼成 assistant
func UserAssistantSingle(d Dataset, opts Options) ([]Exchange, Stats, error) {
	main, err := d.mainSubject(FormatUserAssistantSingle)
	if err != nil {
		return nil, Stats{}, err
	}
	sep := d.separator()

	var (
		out   []Exchange
		stats Stats
	)
	for _, conv := range parser.SplitConversations(d.Turns, opts.Gap) {
		var user, assistant []string
		for _, t := range conv.Turns {
			if t.Sender == main {
				assistant = append(assistant, t.Text)
			} else {
				user = append(user, t.Text)
			}
		}
		if len(user) == 0 || len(assistant) == 0 {
			stats.Dropped += len(conv.Turns)
			continue
		}
		out = append(out, Exchange{Messages: []RoleMessage{
			{Role: RoleUser, Content: strings.Join(user, sep)},
			{Role: RoleAssistant, Content: strings.Join(assistant, sep)},
		}})
		stats.Pairs++
	}
	stats.Rows = len(out)
	return out, stats, nil
}

// UserAssistantFlat 所有交替对展开成 {role, content} 流
func UserAssistantFlat(d Dataset) ([]RoleMessage, Stats, error) {
	main, err := d.mainSubject(FormatUserAssistantFlat)
	if err != nil {
		return nil, Stats{}, err
	}

	pairs, dropped := alternate(d.Turns, main)
	out := make([]RoleMessage, 0, len(pairs)*2)
	for _, p := range pairs {
		out = append(out,
			RoleMessage{Role: RoleUser, Content: p[0].Text},
			RoleMessage{Role: RoleAssistant, Content: p[1].Text},
		)
	}
	return out, Stats{Rows: len(out), Pairs: len(pairs), Dropped: dropped}, nil
}
