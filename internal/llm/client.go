// Package llm is the boundary to the generative model. Everything above it
// depends only on the Client interface so analysis and fix synthesis can be
// tested with a stub.
package llm

import "context"

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
}

// Add accumulates another usage into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

// Request is one completion request.
type Request struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Response is the model's reply plus its token accounting.
type Response struct {
	Text  string
	Usage Usage
}

// Client completes prompts against a generative model.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
