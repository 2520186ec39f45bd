package rag

import (
	"context"
	"log/slog"
)

type Pipeline struct {
	store         *Store
	topK          int
	minSimilarity float32
}

func NewPipeline(store *Store, topK int, minSimilarity float32) *Pipeline {
	return &Pipeline{
		store:         store,
		topK:          topK,
		minSimilarity: minSimilarity,
	}
}

// Retrieve 根据查询文本检索相关的历史对话片段
func (p *Pipeline) Retrieve(ctx context.Context, query string) ([]Result, error) {
	if p.store == nil || p.store.Count() == 0 {
		slog.Debug("no vectors in store, skipping search")
		return nil, nil
	}

	results, err := p.store.Query(ctx, query, p.topK, p.minSimilarity)
	if err != nil {
		return nil, err
	}

	slog.Debug("retrieved conversations", "query", query, "count", len(results))
	return results, nil
}
