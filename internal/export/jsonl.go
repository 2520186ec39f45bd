package export

import (
	"encoding/json"
	"fmt"
	"io"
)

type turnRecord struct {
	Sender string `json:"sender"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Text   string `json:"text"`
}

type messageRecord struct {
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// WriteJSONL 每行一个对象，字段与 CSV 列一致
func WriteJSONL(w io.Writer, d Dataset) (Stats, error) {
	rows := Rows(d)
	items := make([]any, 0, len(rows))
	for _, r := range rows {
		if d.Aggregated {
			items = append(items, turnRecord{Sender: r.Sender, Start: formatTime(r.Start), End: formatTime(r.End), Text: r.Text})
		} else {
			items = append(items, messageRecord{Sender: r.Sender, Timestamp: formatTime(r.Start), Text: r.Text})
		}
	}
	if err := writeLines(w, items); err != nil {
		return Stats{}, err
	}
	return Stats{Rows: len(rows)}, nil
}

func writeLines[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode line %d: %w", i+1, err)
		}
	}
	return nil
}
