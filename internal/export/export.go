package export

import (
	"context"
	"fmt"
	"io"
	"slices"
)

const (
	FormatCSV                 = "csv"
	FormatJSONL               = "jsonl"
	FormatPromptCompletion    = "prompt_completion"
	FormatUserAssistant       = "user_assistant"
	FormatUserAssistantSingle = "user_assistant_single"
	FormatUserAssistantFlat   = "user_assistant_flat"
	FormatSQLite              = "sqlite"
)

// Formats 所有文件导出格式
var Formats = []string{
	FormatCSV,
	FormatJSONL,
	FormatPromptCompletion,
	FormatUserAssistant,
	FormatUserAssistantSingle,
	FormatUserAssistantFlat,
	FormatSQLite,
}

// IsFormat 是否是已知的文件导出格式
func IsFormat(format string) bool {
	return slices.Contains(Formats, format)
}

// DefaultFileName 各格式的默认文件名
func DefaultFileName(format string) string {
	switch format {
	case FormatCSV:
		return "chat.csv"
	case FormatJSONL:
		return "chat.jsonl"
	case FormatSQLite:
		return "chat.db"
	default:
		return format + ".jsonl"
	}
}

// Write 把一种格式写到 w。需要主发送者的格式在写入任何内容之前就会失败
func Write(w io.Writer, format string, d Dataset, opts Options) (Stats, error) {
	switch format {
	case FormatCSV:
		return WriteCSV(w, d)
	case FormatJSONL:
		return WriteJSONL(w, d)
	case FormatPromptCompletion:
		items, stats, err := PromptCompletionPairs(d)
		if err != nil {
			return Stats{}, err
		}
		return stats, writeLines(w, items)
	case FormatUserAssistant:
		items, stats, err := UserAssistantPairs(d, opts)
		if err != nil {
			return Stats{}, err
		}
		return stats, writeLines(w, items)
	case FormatUserAssistantSingle:
		items, stats, err := UserAssistantSingle(d, opts)
		if err != nil {
			return Stats{}, err
		}
		return stats, writeLines(w, items)
	case FormatUserAssistantFlat:
		items, stats, err := UserAssistantFlat(d)
		if err != nil {
			return Stats{}, err
		}
		return stats, writeLines(w, items)
	}
	return Stats{}, fmt.Errorf("unknown export format: %q", format)
}

// ExportFile 导出到文件，要么完整写入要么什么都不写
func ExportFile(ctx context.Context, path, format string, d Dataset, opts Options) (Stats, error) {
	if format == FormatSQLite {
		return WriteSQLite(ctx, path, d)
	}
	if !IsFormat(format) {
		return Stats{}, fmt.Errorf("unknown export format: %q", format)
	}
	if needsMain(format) {
		if _, err := d.mainSubject(format); err != nil {
			return Stats{}, err
		}
	}

	var stats Stats
	err := writeFile(path, func(w io.Writer) error {
		var err error
		stats, err = Write(w, format, d, opts)
		return err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("export %s: %w", format, err)
	}
	return stats, nil
}

func needsMain(format string) bool {
	switch format {
	case FormatPromptCompletion, FormatUserAssistant, FormatUserAssistantSingle, FormatUserAssistantFlat:
		return true
	}
	return false
}
