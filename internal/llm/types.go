package llm

// ChatMessage is a single message in a conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is the outbound wire shape for a chat completion. Streaming
// is always disabled; this client only speaks the blocking request/response
// form of the API.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatOptions overrides per-call generation parameters.
type ChatOptions struct {
	// Temperature overrides the client default when non-nil.
	Temperature *float64
	// MaxTokens overrides the client default when positive.
	MaxTokens int
}

// ResponseMessage is the assistant message inside a choice. Some local
// model runtimes additionally emit reasoning_content alongside the answer.
type ResponseMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// ChatChoice is one completion alternative.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// Usage carries token accounting from the upstream response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the upstream response envelope.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

// FirstContent returns the content of the first choice.
func (r *ChatResponse) FirstContent() (string, error) {
	if len(r.Choices) == 0 {
		return "", &APIError{Kind: KindInvalidResponse, Message: "response has no choices"}
	}
	return r.Choices[0].Message.Content, nil
}

// Reasoning returns the reasoning content of the first choice, or "" when
// the model did not emit any.
func (r *ChatResponse) Reasoning() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.ReasoningContent
}

// ModelDescriptor describes one model advertised by the endpoint.
type ModelDescriptor struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
	Created int64  `json:"created,omitempty"`
}

// modelsEnvelope is the GET /models response wrapper.
type modelsEnvelope struct {
	Data []ModelDescriptor `json:"data"`
}

// ConnectionStatus is the result of TestConnection. Connected stays true
// when the endpoint answered but reported the model as not loaded, since
// the remediation differs (start the model vs. fix URL or credentials).
type ConnectionStatus struct {
	Connected   bool    `json:"connected"`
	ModelLoaded bool    `json:"model_loaded"`
	LatencyMS   float64 `json:"latency_ms"`
	Error       string  `json:"error,omitempty"`
}

// errorEnvelope covers the error payload shapes seen from
// OpenAI-compatible servers: some nest under "error", some put the message
// at the top level.
type errorEnvelope struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (e *errorEnvelope) detail() string {
	if e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}
