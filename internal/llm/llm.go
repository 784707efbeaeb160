package llm

import "net/http"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Doer sends a single HTTP request. *Session and *http.Client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
