package contract

// Role tags a conversation message variant. A message either carries plain
// content, requests tool calls (assistant only), reports a tool outcome, or
// stands in for a summarized span of earlier history.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool-result"
	RoleSummary    Role = "summary"
)

// ToolCall is one tool invocation requested by the generation step.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is one turn in a conversation. Messages are never mutated after
// creation; history transformations build new slices.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// IsToolRequest reports whether the message asks for tool invocations.
func (m Message) IsToolRequest() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleToolResult, Content: content, ToolCallID: callID}
}

func SummaryMessage(content string) Message {
	return Message{Role: RoleSummary, Content: content}
}

// CloneHistory deep-copies a message history so callers can work on it
// without aliasing the stored slice.
func CloneHistory(history []Message) []Message {
	if history == nil {
		return nil
	}
	out := make([]Message, len(history))
	for i, m := range history {
		out[i] = cloneMessage(m)
	}
	return out
}

func cloneMessage(m Message) Message {
	if len(m.ToolCalls) == 0 {
		return m
	}
	calls := make([]ToolCall, len(m.ToolCalls))
	for i, c := range m.ToolCalls {
		calls[i] = ToolCall{ID: c.ID, Name: c.Name, Arguments: cloneArgs(c.Arguments)}
	}
	m.ToolCalls = calls
	return m
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
