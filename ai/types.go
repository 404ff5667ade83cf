package ai

import "encoding/json"

// Roles used in conversation history entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one prior turn sent as conversation_history.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat and POST /chat/stream.
type ChatRequest struct {
	CharacterName       string         `json:"character_name"`
	CharacterPolicy     string         `json:"character_policy"`
	Message             string         `json:"message"`
	ConversationHistory []HistoryEntry `json:"conversation_history"`
	Temperature         float64        `json:"temperature"`
	MaxTokens           int            `json:"max_tokens"`
	ContextLength       int            `json:"context_length"`
	Stop                []string       `json:"stop,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response      string `json:"response"`
	CharacterName string `json:"character_name"`
	Model         string `json:"model"`
}

// HealthStatus is the body returned by GET /health.
type HealthStatus struct {
	Status       string `json:"status"`
	Model        string `json:"model"`
	OllamaStatus string `json:"ollama_status,omitempty"`
}

// Models is the opaque body of GET /models, passed through untouched.
type Models = json.RawMessage

// streamEvent is the JSON payload of one `data: ` line.
type streamEvent struct {
	Content *string `json:"content"`
	Error   *string `json:"error"`
	Done    bool    `json:"done"`
}
