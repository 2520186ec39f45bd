package rag

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/liao/chat-export/internal/parser"
)

// CollectionName 对话片段所在的集合
const CollectionName = "conversations"

// maxDocLen 单个文档的最大字节数，超出部分截断
const maxDocLen = 2000

type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewStore 创建或加载向量存储
func NewStore(vectorsDir string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	db, err := chromem.NewPersistentDB(vectorsDir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	col, err := db.GetOrCreateCollection(CollectionName, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("get/create collection: %w", err)
	}

	slog.Info("vector store loaded", "dir", vectorsDir, "count", col.Count())
	return &Store{db: db, collection: col}, nil
}

// Documents 把对话片段转换成文档，过短的片段跳过
func Documents(conversations []parser.Conversation) []chromem.Document {
	docs := make([]chromem.Document, 0, len(conversations))
	for i, conv := range conversations {
		text := conv.FormatAsExample()
		if len(text) < 10 {
			continue
		}
		if len(text) > maxDocLen {
			text = truncate(text, maxDocLen)
		}

		senders := make([]string, 0, 2)
		for _, t := range conv.Turns {
			if !slices.Contains(senders, t.Sender) {
				senders = append(senders, t.Sender)
			}
		}

		docs = append(docs, chromem.Document{
			ID:      fmt.Sprintf("conv_%05d", i),
			Content: text,
			Metadata: map[string]string{
				"msg_count": strconv.Itoa(conv.MessageCount()),
				"start":     conv.StartAt.Format(time.RFC3339),
				"end":       conv.EndAt.Format(time.RFC3339),
				"senders":   strings.Join(senders, ","),
			},
		})
	}
	return docs
}

// AddConversations 分批写入，返回写入的文档数
func (s *Store) AddConversations(ctx context.Context, conversations []parser.Conversation, batchSize int) (int, error) {
	docs := Documents(conversations)
	if batchSize <= 0 {
		batchSize = 20
	}
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		slog.Info("vectorizing", "progress", fmt.Sprintf("%d/%d", end, len(docs)))
		if err := s.collection.AddDocuments(ctx, docs[start:end], 1); err != nil {
			return start, fmt.Errorf("add documents batch at %d: %w", start, err)
		}
	}
	return len(docs), nil
}

// Query 检索相似对话
func (s *Store) Query(ctx context.Context, text string, topK int, minSimilarity float32) ([]Result, error) {
	if s.collection.Count() == 0 {
		return nil, nil
	}

	k := min(topK, s.collection.Count())
	docs, err := s.collection.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	var results []Result
	for _, d := range docs {
		if d.Similarity < minSimilarity {
			continue
		}
		results = append(results, Result{
			ID:         d.ID,
			Content:    d.Content,
			Similarity: d.Similarity,
			Metadata:   d.Metadata,
		})
	}
	return results, nil
}

// Count 返回文档数量
func (s *Store) Count() int {
	return s.collection.Count()
}

type Result struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

func truncate(s string, n int) string {
	// 不截断半个 UTF-8 字符
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
