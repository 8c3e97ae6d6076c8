package api

const (
	ChatPath   = "/api/chat"
	HealthPath = "/healthz"
)

const ReadyMessage = "Chat API is ready. Use POST to send messages."

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Image    string        `json:"image,omitempty"`
}

type ToolError struct {
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

// ChatResponse flags are set only by the branch that produces them:
// imageAnalyzed for image requests, contextUsed and toolsUsed otherwise.
type ChatResponse struct {
	Message       string      `json:"message"`
	ImageAnalyzed *bool       `json:"imageAnalyzed,omitempty"`
	ContextUsed   *bool       `json:"contextUsed,omitempty"`
	ToolsUsed     *bool       `json:"toolsUsed,omitempty"`
	ToolErrors    []ToolError `json:"toolErrors,omitempty"`
}

type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ToolsResponse struct {
	AvailableTools []ToolInfo `json:"availableTools"`
	Message        string     `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
