package shared

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// StreamRequest is the parsed body of a streaming chat call. Immutable once
// accepted; the last message is the newest user turn.
type StreamRequest struct {
	RequestID  string        `json:"request_id" validate:"required,max=128"`
	SessionID  string        `json:"session_id,omitempty"`
	UserID     string        `json:"user_id,omitempty"`
	UserRole   string        `json:"user_role,omitempty"`
	Department string        `json:"department,omitempty"`
	Domain     string        `json:"domain,omitempty"`
	Channel    string        `json:"channel,omitempty"`
	Model      string        `json:"model,omitempty"`
	Messages   []ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

type UserMetadata struct {
	Email          string `json:"email,omitempty"`
	UserID         uint64 `json:"user_id,omitempty"`
	Credits        uint64 `json:"credits,omitempty"`
	AllowOverspend bool   `json:"allow_overspend,omitempty"`
	Role           string `json:"role,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Object  string `json:"object"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}
