package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// Client Gemini embedding 客户端，带简单的每分钟限流
type Client struct {
	client     *genai.Client
	embedModel string
	maxRetries int

	// 限流
	rpmLimit int
	mu       sync.Mutex
	tokens   int
	lastTick time.Time
}

func NewClient(ctx context.Context, apiKey string, embedModel string, rpmLimit int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if rpmLimit <= 0 {
		rpmLimit = 60
	}

	return &Client{
		client:     client,
		embedModel: embedModel,
		maxRetries: 5,
		rpmLimit:   rpmLimit,
		tokens:     rpmLimit,
		lastTick:   time.Now(),
	}, nil
}

// Embed 生成文本嵌入向量，429 时退避重试
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.waitForToken(ctx); err != nil {
			return nil, err
		}
		resp, err := c.client.Models.EmbedContent(ctx, c.embedModel,
			[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
		if err == nil {
			if len(resp.Embeddings) == 0 {
				return nil, fmt.Errorf("empty embedding response")
			}
			return resp.Embeddings[0].Values, nil
		}
		lastErr = err

		wait := time.Duration(1<<attempt) * time.Second
		if isRateLimited(err) {
			wait = time.Duration(10*(attempt+1)) * time.Second
		}
		slog.Warn("embed failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("embed failed after %d attempts: %w", c.maxRetries, lastErr)
}

// EmbedFunc 返回一个可用于 chromem-go 的 embedding 函数
func (c *Client) EmbedFunc() func(ctx context.Context, text string) ([]float32, error) {
	return c.Embed
}

func isRateLimited(err error) bool {
	return strings.Contains(err.Error(), "429") || strings.Contains(err.Error(), "RESOURCE_EXHAUSTED")
}

// waitForToken 简单令牌桶限流
func (c *Client) waitForToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(c.lastTick)
	if elapsed >= time.Minute {
		c.tokens = c.rpmLimit
		c.lastTick = now
	}

	if c.tokens > 0 {
		c.tokens--
		return nil
	}

	wait := time.Minute - elapsed
	c.mu.Unlock()
	slog.Info("rate limit reached, waiting", "duration", wait)
	select {
	case <-ctx.Done():
		c.mu.Lock()
		return ctx.Err()
	case <-time.After(wait):
	}
	c.mu.Lock()
	c.tokens = c.rpmLimit - 1
	c.lastTick = time.Now()
	return nil
}
