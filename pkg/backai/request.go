package backai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one chat turn. A nil Messages means the history was missing; an
// empty non-nil slice is a present but empty history.
type Request struct {
	Messages []Message
	Image    string
}

type wireRequest struct {
	Messages json.RawMessage `json:"messages"`
	Image    json.RawMessage `json:"image"`
}

// imagePayload treats JSON null, false, 0 and "" as no image. A string is
// unquoted; any other value is passed on as its JSON text.
func imagePayload(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return "", nil
	}

	if raw[0] != '"' {
		return string(raw), nil
	}

	var image string
	if err := json.Unmarshal(raw, &image); err != nil {
		return "", err
	}
	return image, nil
}

// DecodeRequest parses a chat request body. Any shape problem is reported as
// ErrInvalidRequest.
func DecodeRequest(r io.Reader) (Request, error) {
	var wire wireRequest
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return Request{}, invalidRequest(fmt.Sprintf("Invalid JSON body: %v", err))
	}

	raw := bytes.TrimSpace(wire.Messages)
	if len(raw) == 0 || raw[0] != '[' {
		return Request{}, invalidRequest("Messages array is required")
	}

	messages := []Message{}
	if err := json.Unmarshal(raw, &messages); err != nil {
		return Request{}, invalidRequest(fmt.Sprintf("Invalid messages: %v", err))
	}
	if messages == nil {
		messages = []Message{}
	}

	image, err := imagePayload(wire.Image)
	if err != nil {
		return Request{}, invalidRequest(fmt.Sprintf("Invalid image: %v", err))
	}

	return Request{Messages: messages, Image: image}, nil
}
