package parser

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func msg(sender, text string, minute int) MessageRecord {
	return MessageRecord{
		Timestamp: time.Date(2024, 1, 1, 10, minute, 0, 0, time.UTC),
		Sender:    sender,
		Text:      text,
		Line:      minute + 1,
	}
}

func TestAggregate_Scenario(t *testing.T) {
	messages := []MessageRecord{
		msg("Alice", "Hi", 0),
		msg("Alice", "How are you?", 1),
		msg("Bob", "Good, thanks!", 2),
	}

	turns := Aggregate(messages, true, DefaultSeparator)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Sender != "Alice" || turns[0].Text != "Hi\nHow are you?" {
		t.Errorf("turn 0 = (%q, %q)", turns[0].Sender, turns[0].Text)
	}
	if turns[1].Sender != "Bob" || turns[1].Text != "Good, thanks!" {
		t.Errorf("turn 1 = (%q, %q)", turns[1].Sender, turns[1].Text)
	}
	if !turns[0].Start.Equal(messages[0].Timestamp) || !turns[0].End.Equal(messages[1].Timestamp) {
		t.Errorf("turn 0 span = %v..%v", turns[0].Start, turns[0].End)
	}
}

func TestAggregate_Disabled(t *testing.T) {
	messages := []MessageRecord{msg("A", "1", 0), msg("A", "2", 1), msg("B", "3", 2)}
	turns := Aggregate(messages, false, DefaultSeparator)
	if len(turns) != len(messages) {
		t.Fatalf("expected %d turns, got %d", len(messages), len(turns))
	}
	for i, tr := range turns {
		if tr.Text != messages[i].Text || tr.Sender != messages[i].Sender {
			t.Errorf("turn %d = (%q, %q)", i, tr.Sender, tr.Text)
		}
		if !tr.Start.Equal(tr.End) {
			t.Errorf("turn %d start != end", i)
		}
	}
}

func TestAggregate_Lossless(t *testing.T) {
	messages := []MessageRecord{
		msg("A", "a1", 0), msg("A", "a2", 1), msg("B", "b1", 2),
		msg("A", "a3", 3), msg("C", "c1", 4), msg("C", "c2", 5), msg("C", "c3", 6),
	}

	for _, enabled := range []bool{true, false} {
		turns := Aggregate(messages, enabled, DefaultSeparator)

		fragments := 0
		for _, tr := range turns {
			fragments += len(Split(tr, DefaultSeparator))
		}
		if fragments != len(messages) {
			t.Errorf("enabled=%v: %d fragments, want %d", enabled, fragments, len(messages))
		}
		if got := Flatten(turns); !reflect.DeepEqual(got, messages) {
			t.Errorf("enabled=%v: Flatten did not recover messages", enabled)
		}
	}
}

func TestAggregate_MaximalRuns(t *testing.T) {
	messages := []MessageRecord{
		msg("A", "1", 0), msg("B", "2", 1), msg("B", "3", 2), msg("A", "4", 3),
	}
	turns := Aggregate(messages, true, " | ")
	var got []string
	for _, tr := range turns {
		got = append(got, tr.Sender+"="+tr.Text)
	}
	want := []string{"A=1", "B=2 | 3", "A=4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAggregate_Empty(t *testing.T) {
	if turns := Aggregate(nil, true, DefaultSeparator); turns != nil {
		t.Errorf("expected nil, got %v", turns)
	}
}

func TestSplitConversations(t *testing.T) {
	messages := []MessageRecord{
		msg("A", "1", 0), msg("B", "2", 1),
		msg("A", "3", 45), msg("B", "4", 46),
	}
	turns := Aggregate(messages, true, DefaultSeparator)

	convs := SplitConversations(turns, 30*time.Minute)
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if len(convs[0].Turns) != 2 || len(convs[1].Turns) != 2 {
		t.Errorf("turn counts = %d, %d", len(convs[0].Turns), len(convs[1].Turns))
	}
	if !convs[1].StartAt.Equal(messages[2].Timestamp) || !convs[1].EndAt.Equal(messages[3].Timestamp) {
		t.Errorf("second conversation span = %v..%v", convs[1].StartAt, convs[1].EndAt)
	}

	if got := SplitConversations(turns, 0); len(got) != 1 {
		t.Errorf("gap 0: expected 1 conversation, got %d", len(got))
	}
	if got := SplitConversations(nil, time.Minute); got != nil {
		t.Errorf("expected nil for no turns, got %v", got)
	}
}

func TestConversation_FormatAsExample(t *testing.T) {
	turns := Aggregate([]MessageRecord{msg("A", "hi", 0), msg("B", "yo", 1)}, true, DefaultSeparator)
	conv := Conversation{Turns: turns}
	if got := conv.FormatAsExample(); got != "A：hi\nB：yo\n" {
		t.Errorf("FormatAsExample = %q", got)
	}
	if conv.MessageCount() != 2 {
		t.Errorf("MessageCount = %d, want 2", conv.MessageCount())
	}
}

func TestDropPlaceholders(t *testing.T) {
	messages := []MessageRecord{
		msg("A", "<Media omitted>", 0),
		msg("A", "real text", 1),
		msg("B", " This message was deleted ", 2),
	}
	got, dropped := DropPlaceholders(messages, DefaultPlaceholders)
	if dropped != 2 || len(got) != 1 || got[0].Text != "real text" {
		t.Errorf("got %v, dropped %d", got, dropped)
	}

	got, dropped = DropPlaceholders(messages, nil)
	if dropped != 0 || len(got) != 3 {
		t.Errorf("nil placeholders should keep everything, got %d dropped", dropped)
	}
}

func TestSplit_SeparatorInsideMessage(t *testing.T) {
	messages := []MessageRecord{msg("A", "line1\nline2", 0), msg("A", "line3", 1)}
	turns := Aggregate(messages, true, DefaultSeparator)
	// 消息本身含分隔符时按文本拆分会多出片段，Messages 仍然精确
	if n := len(Split(turns[0], DefaultSeparator)); n != 3 {
		t.Errorf("split fragments = %d, want 3", n)
	}
	if len(turns[0].Messages) != 2 {
		t.Errorf("constituent messages = %d, want 2", len(turns[0].Messages))
	}
	if !strings.HasPrefix(turns[0].Text, "line1\nline2\n") {
		t.Errorf("text = %q", turns[0].Text)
	}
}
