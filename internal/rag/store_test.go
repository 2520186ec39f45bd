package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/liao/chat-export/internal/parser"
)

// letterEmbed 按字母频次生成向量，避免测试依赖网络
func letterEmbed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 27)
	v[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v, nil
}

func conversations() []parser.Conversation {
	at := func(m int) time.Time { return time.Date(2024, 1, 1, 10, m, 0, 0, time.UTC) }
	messages := []parser.MessageRecord{
		{Timestamp: at(0), Sender: "Alice", Text: "pizza pizza pizza tonight?"},
		{Timestamp: at(1), Sender: "Bob", Text: "pizza sounds good"},
		{Timestamp: at(50), Sender: "Alice", Text: "how was the football match"},
		{Timestamp: at(51), Sender: "Bob", Text: "we won the match"},
		{Timestamp: at(90), Sender: "A", Text: "k"},
	}
	turns := parser.Aggregate(messages, true, parser.DefaultSeparator)
	return parser.SplitConversations(turns, 30*time.Minute)
}

func TestDocuments(t *testing.T) {
	docs := Documents(conversations())
	// 第三段太短被跳过
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	if docs[0].ID != "conv_00000" || docs[1].ID != "conv_00001" {
		t.Errorf("ids = %s, %s", docs[0].ID, docs[1].ID)
	}
	if docs[0].Metadata["msg_count"] != "2" || docs[0].Metadata["senders"] != "Alice,Bob" {
		t.Errorf("metadata = %v", docs[0].Metadata)
	}
	if !strings.HasPrefix(docs[0].Content, "Alice：pizza") {
		t.Errorf("content = %q", docs[0].Content)
	}
}

func TestStore_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir(), letterEmbed)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	n, err := store.AddConversations(ctx, conversations(), 1)
	if err != nil {
		t.Fatalf("AddConversations: %v", err)
	}
	if n != 2 || store.Count() != 2 {
		t.Fatalf("added %d, count %d", n, store.Count())
	}

	results, err := NewPipeline(store, 5, 0).Retrieve(ctx, "pizza pizza")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ID != "conv_00000" {
		t.Errorf("best match = %s, want conv_00000", results[0].ID)
	}
}

func TestPipeline_EmptyStore(t *testing.T) {
	results, err := NewPipeline(nil, 5, 0).Retrieve(context.Background(), "x")
	if err != nil || results != nil {
		t.Errorf("got %v, %v", results, err)
	}
}

func TestTruncate(t *testing.T) {
	s := "ab你好"
	// "你" 占 3 字节，截在中间要回退
	if got := truncate(s, 4); got != "ab" {
		t.Errorf("truncate = %q, want %q", got, "ab")
	}
	if got := truncate(s, 5); got != "ab你" {
		t.Errorf("truncate = %q, want %q", got, "ab你")
	}
}
