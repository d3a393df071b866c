package contract

import "context"

// Generator is the remote generation step: given the (possibly compacted)
// history it returns either a plain assistant reply or a tool request.
type Generator interface {
	Complete(ctx context.Context, history []Message) (Message, error)
}

// Summarizer condenses a flat conversation transcript into a short text.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Invoker executes a registered tool by name. Unknown tool names fail with
// ErrUnknownTool; all other failures are folded into the outcome string.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

// Synthesizer turns a reply into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
