package chat

import (
	"strings"
	"time"
)

// Role is the author of a message in a conversation
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the accepted roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// FinishReason explains why a completion ended
type FinishReason string

const (
	FinishStop    FinishReason = "stop"
	FinishTimeout FinishReason = "timeout"
	FinishError   FinishReason = "error"
)

// Message is one role/content pair of a conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is an OpenAI-style chat completion request.
// Overrides holds pass-through knobs (temperature, top_p, ...) that the
// gateway forwards without interpreting.
type ChatRequest struct {
	Model     string                 `json:"model"`
	Messages  []Message              `json:"messages"`
	Stream    bool                   `json:"stream"`
	Overrides map[string]interface{} `json:"-"`
}

// LastUserMessage returns the content of the final user turn
func (r ChatRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Usage holds approximate token counters.
// The values are word-count heuristics, not tokenizer output.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is a single completion alternative
type Choice struct {
	Index        int          `json:"index"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// ChatResponse is a buffered (non-streaming) completion
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Content returns the text of the first choice
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Delta is the incremental part of a streamed chunk
type Delta struct {
	Role    Role   `json:"role,omitempty"`
	Content string `json:"content"`
}

// ChunkChoice is a streamed completion alternative
type ChunkChoice struct {
	Index        int           `json:"index"`
	Delta        Delta         `json:"delta"`
	FinishReason *FinishReason `json:"finish_reason"`
}

// ChatChunk is one element of an emulated stream. Done marks the single
// terminal chunk of a sequence. EmittedAt is the local emission time.
type ChatChunk struct {
	ID        string        `json:"id"`
	Object    string        `json:"object"`
	Created   int64         `json:"created"`
	Model     string        `json:"model"`
	Choices   []ChunkChoice `json:"choices"`
	Done      bool          `json:"-"`
	EmittedAt time.Time     `json:"-"`
}

// Text returns the content fragment carried by the chunk
func (c ChatChunk) Text() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// ModelDescriptor describes a model exposed through the gateway
type ModelDescriptor struct {
	ID      string `json:"id" yaml:"id" toml:"id"`
	Name    string `json:"name" yaml:"name" toml:"name"`
	OwnedBy string `json:"owned_by" yaml:"owned_by" toml:"owned_by"`
}

const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"
	ObjectModel      = "model"
	ObjectList       = "list"
)

// WordCount counts whitespace-delimited words
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// SiteScript is everything a browser session needs to run one interaction
// against the site: the flattened prompt, the site-side model name and any
// pass-through options.
type SiteScript struct {
	Prompt  string
	Model   string
	Options map[string]interface{}
}

// RawReply is the unprocessed output of one site interaction
type RawReply struct {
	Body        []byte
	ContentType string
	Status      int
}
