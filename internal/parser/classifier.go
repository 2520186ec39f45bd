package parser

import "strings"

// Kind 行的分类结果
type Kind int

const (
	KindContinuation Kind = iota
	KindHeader
)

func (k Kind) String() string {
	if k == KindHeader {
		return "header"
	}
	return "continuation"
}

// Classification 单行分类结果。Kind 为 KindContinuation 时只有 Text 有效
type Classification struct {
	Kind   Kind
	Date   string
	Time   string
	Sender string
	Text   string
}

// Classifier 判断一行是新消息的消息头还是上一条消息的续行
type Classifier struct {
	pattern *Pattern
}

func NewClassifier(p *Pattern) *Classifier {
	return &Classifier{pattern: p}
}

// Pattern 当前使用的消息头格式
func (c *Classifier) Pattern() *Pattern {
	return c.pattern
}

// Classify 不匹配消息头的行一律视为续行，不管内容是什么
func (c *Classifier) Classify(line string) Classification {
	line = NormalizeLine(line)

	m := c.pattern.re.FindStringSubmatch(line)
	if m == nil {
		return Classification{Kind: KindContinuation, Text: line}
	}
	sender := strings.TrimSpace(m[c.pattern.sender])
	if sender == "" {
		return Classification{Kind: KindContinuation, Text: line}
	}
	return Classification{
		Kind:   KindHeader,
		Date:   m[c.pattern.date],
		Time:   m[c.pattern.time],
		Sender: sender,
		Text:   m[c.pattern.text],
	}
}

// 导出文件里常见的不可见字符
var lineReplacer = strings.NewReplacer(
	"\u200e", "",
	"\u200f", "",
	"\ufeff", "",
	"\u202f", " ",
	"\u00a0", " ",
)

// NormalizeLine 去掉方向标记、BOM 和行尾 \r，窄空格替换为普通空格
func NormalizeLine(line string) string {
	return lineReplacer.Replace(strings.TrimRight(line, "\r"))
}
