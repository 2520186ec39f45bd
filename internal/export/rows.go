package export

import "time"

// TimeLayout 导出时间统一使用 RFC 3339
const TimeLayout = time.RFC3339

// Row 表格中的一行。未合并轮次时 Start 和 End 相同，输出时只写 timestamp 列
type Row struct {
	Sender string
	Start  time.Time
	End    time.Time
	Text   string
}

// Columns 表头
func Columns(aggregated bool) []string {
	if aggregated {
		return []string{"sender", "start", "end", "text"}
	}
	return []string{"sender", "timestamp", "text"}
}

// Rows 每轮一行；未合并时每条消息一行
func Rows(d Dataset) []Row {
	rows := make([]Row, 0, len(d.Turns))
	for _, t := range d.Turns {
		rows = append(rows, Row{Sender: t.Sender, Start: t.Start, End: t.End, Text: t.Text})
	}
	return rows
}

// Fields 与 Columns 对应的字符串字段
func (r Row) Fields(aggregated bool) []string {
	if aggregated {
		return []string{r.Sender, formatTime(r.Start), formatTime(r.End), r.Text}
	}
	return []string{r.Sender, formatTime(r.Start), r.Text}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}
