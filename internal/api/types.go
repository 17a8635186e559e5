package api

import "github.com/samcharles93/rollout/internal/inference"

// CompletionRequest is an OpenAI-style text completion request. Sampling
// fields are the inference.RequestOptions overrides, flattened.
type CompletionRequest struct {
	Model  string `json:"model,omitempty"`
	Stream bool   `json:"stream,omitempty"`
	inference.RequestOptions
}

type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

type CompletionChoice struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	FinishReason *string `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type TokenizeRequest struct {
	Text   string `json:"text"`
	AddBOS *bool  `json:"add_bos,omitempty"`
}

type TokenizeResponse struct {
	Tokens []int `json:"tokens"`
	Count  int   `json:"count"`
}

type DetokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

// DetokenizeResponse has Complete false when the tokens end inside a
// multi-byte character; Text is then empty.
type DetokenizeResponse struct {
	Text     string `json:"text"`
	Complete bool   `json:"complete"`
}

type EmbeddingRequest struct {
	Model string `json:"model,omitempty"`
	Input any    `json:"input"`
}

type EmbeddingResponse struct {
	Object string          `json:"object"`
	Model  string          `json:"model"`
	Data   []EmbeddingData `json:"data"`
}

type EmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type ModelInfo struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	OwnedBy       string `json:"owned_by"`
	Backend       string `json:"backend"`
	ContextSize   int    `json:"context_size"`
	VocabSize     int    `json:"vocab_size"`
	EmbeddingSize int    `json:"embedding_size"`
	Embedding     bool   `json:"embedding"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}
