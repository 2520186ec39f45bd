package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/liao/chat-export/internal/parser"
)

func record(sender, text string, minute int) parser.MessageRecord {
	return parser.MessageRecord{
		Timestamp: time.Date(2024, 1, 1, 10, minute, 0, 0, time.UTC),
		Sender:    sender,
		Text:      text,
		Line:      minute + 1,
	}
}

func dataset(messages []parser.MessageRecord, aggregated bool, main string) Dataset {
	var subjects []string
	seen := map[string]bool{}
	for _, m := range messages {
		if !seen[m.Sender] {
			seen[m.Sender] = true
			subjects = append(subjects, m.Sender)
		}
	}
	return Dataset{
		Messages:   messages,
		Turns:      parser.Aggregate(messages, aggregated, parser.DefaultSeparator),
		Aggregated: aggregated,
		Subjects:   subjects,
		Main:       main,
		HasMain:    main != "",
		Separator:  parser.DefaultSeparator,
	}
}

func scenario(main string) Dataset {
	return dataset([]parser.MessageRecord{
		record("Alice", "Hi", 0),
		record("Alice", "How are you?", 1),
		record("Bob", "Good, thanks!", 2),
	}, true, main)
}

func TestPromptCompletion_Scenario(t *testing.T) {
	ds := scenario("Bob")
	if len(ds.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(ds.Turns))
	}

	pairs, stats, err := PromptCompletionPairs(ds)
	if err != nil {
		t.Fatalf("PromptCompletionPairs: %v", err)
	}
	want := []PromptCompletion{{Prompt: "Hi\nHow are you?", Completion: "Good, thanks!"}}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("pairs = %+v, want %+v", pairs, want)
	}
	if stats.Dropped != 0 {
		t.Errorf("dropped = %d, want 0", stats.Dropped)
	}
}

func TestPromptCompletion_DropsNonAlternating(t *testing.T) {
	ds := dataset([]parser.MessageRecord{
		record("Bob", "opening", 0),      // 主发送者开头，丢弃
		record("Alice", "q1", 1),         // 配对
		record("Bob", "a1", 2),           // 配对
		record("Carol", "noise", 3),      // 后面不是 Bob，丢弃
		record("Alice", "q2", 4),         // 配对
		record("Bob", "a2", 5),           // 配对
		record("Alice", "unanswered", 6), // 丢弃
	}, true, "Bob")

	pairs, stats, err := PromptCompletionPairs(ds)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 2 || pairs[0].Prompt != "q1" || pairs[1].Completion != "a2" {
		t.Errorf("pairs = %+v", pairs)
	}
	if stats.Dropped != 3 {
		t.Errorf("dropped = %d, want 3", stats.Dropped)
	}
}

func TestMissingMainSubject(t *testing.T) {
	ds := scenario("")
	dir := t.TempDir()

	for _, format := range []string{FormatPromptCompletion, FormatUserAssistant, FormatUserAssistantSingle, FormatUserAssistantFlat} {
		path := filepath.Join(dir, DefaultFileName(format))
		_, err := ExportFile(context.Background(), path, format, ds, Options{})
		if !errors.Is(err, ErrMissingMainSubject) {
			t.Errorf("%s: expected ErrMissingMainSubject, got %v", format, err)
		}
		var mse *MissingMainSubjectError
		if !errors.As(err, &mse) || mse.Format != format {
			t.Errorf("%s: expected MissingMainSubjectError, got %v", format, err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s: output file should not exist", format)
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty output dir, found %d entries", len(entries))
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	ds := dataset([]parser.MessageRecord{
		record("Alice", "Hi, \"Bob\"", 0),
		record("Alice", "second line", 1),
		record("Bob", "multi\nline, with comma", 2),
		record("Alice", "ok", 3),
	}, true, "")

	path := filepath.Join(t.TempDir(), "chat.csv")
	stats, err := ExportFile(context.Background(), path, FormatCSV, ds, Options{})
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	if stats.Rows != len(ds.Turns) {
		t.Errorf("rows = %d, want %d", stats.Rows, len(ds.Turns))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	if !reflect.DeepEqual(rows[0], []string{"sender", "start", "end", "text"}) {
		t.Errorf("header = %v", rows[0])
	}
	if len(rows)-1 != len(ds.Turns) {
		t.Fatalf("csv rows = %d, want %d", len(rows)-1, len(ds.Turns))
	}
	for i, tr := range ds.Turns {
		row := rows[i+1]
		if row[0] != tr.Sender || row[3] != tr.Text {
			t.Errorf("row %d = (%q, %q), want (%q, %q)", i, row[0], row[3], tr.Sender, tr.Text)
		}
	}
	if rows[1][1] != "2024-01-01T10:00:00Z" || rows[1][2] != "2024-01-01T10:01:00Z" {
		t.Errorf("span = %s..%s", rows[1][1], rows[1][2])
	}
}

func TestCSV_MessageLevel(t *testing.T) {
	ds := dataset([]parser.MessageRecord{record("Alice", "Hi", 0), record("Alice", "Yo", 1)}, false, "")
	var b strings.Builder
	if _, err := WriteCSV(&b, ds); err != nil {
		t.Fatal(err)
	}
	want := "sender,timestamp,text\nAlice,2024-01-01T10:00:00Z,Hi\nAlice,2024-01-01T10:01:00Z,Yo\n"
	if b.String() != want {
		t.Errorf("csv = %q, want %q", b.String(), want)
	}
}

func TestJSONL(t *testing.T) {
	ds := scenario("")
	var b strings.Builder
	stats, err := WriteJSONL(&b, ds)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Rows != 2 {
		t.Errorf("rows = %d, want 2", stats.Rows)
	}

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"sender": "Alice",
		"start":  "2024-01-01T10:00:00Z",
		"end":    "2024-01-01T10:01:00Z",
		"text":   "Hi\nHow are you?",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("line 0 = %v, want %v", got, want)
	}
}

func conversationData() Dataset {
	return dataset([]parser.MessageRecord{
		record("Alice", "q1", 0),
		record("Bob", "a1", 1),
		record("Alice", "q2", 2),
		record("Bob", "a2", 3),
		// 间隔超过 30 分钟，开始新对话
		record("Alice", "later", 40),
		record("Alice", "anyone?", 41),
		record("Bob", "yes", 42),
	}, true, "Bob")
}

func TestUserAssistantPairs(t *testing.T) {
	exchanges, stats, err := UserAssistantPairs(conversationData(), Options{Gap: 30 * time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if len(exchanges) != 2 {
		t.Fatalf("exchanges = %d, want 2", len(exchanges))
	}
	want0 := []RoleMessage{
		{RoleUser, "q1"}, {RoleAssistant, "a1"},
		{RoleUser, "q2"}, {RoleAssistant, "a2"},
	}
	if !reflect.DeepEqual(exchanges[0].Messages, want0) {
		t.Errorf("exchange 0 = %+v", exchanges[0].Messages)
	}
	want1 := []RoleMessage{{RoleUser, "later\nanyone?"}, {RoleAssistant, "yes"}}
	if !reflect.DeepEqual(exchanges[1].Messages, want1) {
		t.Errorf("exchange 1 = %+v", exchanges[1].Messages)
	}
	if stats.Pairs != 3 || stats.Dropped != 0 {
		t.Errorf("stats = %+v", stats)
	}

	whole, _, err := UserAssistantPairs(conversationData(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(whole) != 1 || len(whole[0].Messages) != 6 {
		t.Errorf("without gap: %d exchanges", len(whole))
	}
}

func TestUserAssistantSingle(t *testing.T) {
	exchanges, _, err := UserAssistantSingle(conversationData(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(exchanges) != 1 {
		t.Fatalf("exchanges = %d, want 1", len(exchanges))
	}
	want := []RoleMessage{
		{RoleUser, "q1\nq2\nlater\nanyone?"},
		{RoleAssistant, "a1\na2\nyes"},
	}
	if !reflect.DeepEqual(exchanges[0].Messages, want) {
		t.Errorf("messages = %+v, want %+v", exchanges[0].Messages, want)
	}

	// 只有一方发言的对话被丢弃
	ds := dataset([]parser.MessageRecord{record("Alice", "alone", 0)}, true, "Bob")
	ds.Subjects = append(ds.Subjects, "Bob")
	exchanges, stats, err := UserAssistantSingle(ds, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(exchanges) != 0 || stats.Dropped != 1 {
		t.Errorf("exchanges = %d, dropped = %d", len(exchanges), stats.Dropped)
	}
}

func TestUserAssistantFlat(t *testing.T) {
	msgs, stats, err := UserAssistantFlat(scenario("Bob"))
	if err != nil {
		t.Fatal(err)
	}
	want := []RoleMessage{{RoleUser, "Hi\nHow are you?"}, {RoleAssistant, "Good, thanks!"}}
	if !reflect.DeepEqual(msgs, want) {
		t.Errorf("messages = %+v", msgs)
	}
	if stats.Pairs != 1 {
		t.Errorf("pairs = %d, want 1", stats.Pairs)
	}
}

func TestExportFile_Compressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt_completion.jsonl"+CompressedSuffix)
	if _, err := ExportFile(context.Background(), path, FormatPromptCompletion, scenario("Bob"), Options{}); err != nil {
		t.Fatalf("ExportFile: %v", err)
	}

	rc, err := OpenOutput(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	var got []PromptCompletion
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		var pc PromptCompletion
		if err := json.Unmarshal(scanner.Bytes(), &pc); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, pc)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Completion != "Good, thanks!" {
		t.Errorf("got %+v", got)
	}
}

func TestExportFile_UnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.out")
	if _, err := ExportFile(context.Background(), path, "xml", scenario("Bob"), Options{}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("output file should not exist")
	}
}

func TestExportsDoNotMutateDataset(t *testing.T) {
	ds := conversationData()
	before := dataset(ds.Messages, true, "Bob")

	var b strings.Builder
	for _, format := range []string{FormatCSV, FormatJSONL, FormatPromptCompletion, FormatUserAssistant, FormatUserAssistantSingle, FormatUserAssistantFlat} {
		if _, err := Write(&b, format, ds, Options{Gap: time.Minute}); err != nil {
			t.Fatalf("%s: %v", format, err)
		}
	}
	if !reflect.DeepEqual(ds, before) {
		t.Error("dataset mutated by export")
	}
}

func TestExportFile_Permissions(t *testing.T) {
	dir := t.TempDir()
	for _, format := range []string{FormatCSV, FormatJSONL, FormatSQLite} {
		path := filepath.Join(dir, DefaultFileName(format))
		if _, err := ExportFile(context.Background(), path, format, scenario("Bob"), Options{}); err != nil {
			t.Fatalf("ExportFile %s: %v", format, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o644 {
			t.Errorf("%s mode = %o, want 644", format, perm)
		}
	}
}
