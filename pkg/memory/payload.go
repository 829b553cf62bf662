package memory

import (
	"encoding/json"
	"fmt"
)

// UnknownToolName is reported for tool entries whose payload cannot be decoded.
const UnknownToolName = "unknown"

// ToolCall is one tool invocation requested by an AI message.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// aiContent is the encoded form of an AI entry carrying tool calls.
type aiContent struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls"`
}

// toolContent is the encoded form of a tool entry.
type toolContent struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Input      any    `json:"input"`
	Output     any    `json:"output"`
}

// AIPayload is the decoded content of an AI entry. Structured is false when
// the stored content was plain text or could not be decoded, in which case
// Text holds the raw content.
type AIPayload struct {
	Structured bool
	Text       string
	ToolCalls  []ToolCall
}

// ToolPayload is the decoded content of a tool entry. Structured is false when
// the payload could not be decoded: ToolName is then UnknownToolName and Raw
// holds the stored content.
type ToolPayload struct {
	Structured bool
	ToolCallID string
	ToolName   string
	Input      any
	Output     any
	Raw        string
}

// EncodeAI returns the content string for an AI message. Without tool calls
// the text is stored as is.
func EncodeAI(text string, toolCalls []ToolCall) (string, error) {
	if len(toolCalls) == 0 {
		return text, nil
	}

	b, err := json.Marshal(aiContent{Content: text, ToolCalls: toolCalls})
	if err != nil {
		return "", fmt.Errorf("encoding ai content: %w", err)
	}
	return string(b), nil
}

// EncodeTool returns the content string for a tool message.
func EncodeTool(toolCallID, toolName string, input, output any) (string, error) {
	b, err := json.Marshal(toolContent{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Input:      input,
		Output:     output,
	})
	if err != nil {
		return "", fmt.Errorf("encoding tool content: %w", err)
	}
	return string(b), nil
}

// DecodeAI decodes an AI entry. It never fails: content that is not a
// structured payload falls back to plain text.
func DecodeAI(content string) AIPayload {
	var c aiContent
	if err := json.Unmarshal([]byte(content), &c); err != nil || c.ToolCalls == nil {
		return AIPayload{Text: content}
	}

	return AIPayload{
		Structured: true,
		Text:       c.Content,
		ToolCalls:  c.ToolCalls,
	}
}

// DecodeTool decodes a tool entry. It never fails: a corrupt payload yields an
// unstructured result naming UnknownToolName.
func DecodeTool(content string) ToolPayload {
	var c toolContent
	if err := json.Unmarshal([]byte(content), &c); err != nil || c.ToolName == "" {
		return ToolPayload{
			ToolName: UnknownToolName,
			Raw:      content,
		}
	}

	return ToolPayload{
		Structured: true,
		ToolCallID: c.ToolCallID,
		ToolName:   c.ToolName,
		Input:      c.Input,
		Output:     c.Output,
		Raw:        content,
	}
}
