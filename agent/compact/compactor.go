// Package compact bounds conversation history before it reaches the
// generation model: the oldest span is replaced by a single summary message,
// the most recent messages are kept verbatim.
package compact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/trenchburger/attendant/agent/contract"
)

const DefaultCapacity = 20

const summaryPrefix = "Summary of earlier conversation:\n"

// Compactor shortens histories that exceed the capacity threshold.
type Compactor struct {
	capacity   int
	summarizer contractx.Summarizer
}

// New builds a Compactor. Capacity must be at least 2 so the newest message
// (the turn being answered) always survives compaction.
func New(capacity int, summarizer contractx.Summarizer) (*Compactor, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("%w: capacity must be >= 2, got %d", contractx.ErrValidation, capacity)
	}
	if summarizer == nil {
		return nil, errors.New("summarizer is required")
	}
	return &Compactor{capacity: capacity, summarizer: summarizer}, nil
}

func (c *Compactor) Capacity() int {
	return c.capacity
}

// NeedsCompaction reports whether the history exceeds the capacity.
func (c *Compactor) NeedsCompaction(history []contractx.Message) bool {
	return len(history) > c.capacity
}

// Compact summarizes the oldest len-capacity/2 messages into one summary
// message and keeps the most recent capacity/2 verbatim. If the summarizer
// call fails the result degrades to the most recent capacity messages,
// preserving progress over fidelity. The input is never modified.
func (c *Compactor) Compact(ctx context.Context, history []contractx.Message) []contractx.Message {
	if !c.NeedsCompaction(history) {
		return history
	}

	keep := c.capacity / 2
	cut := len(history) - keep

	summary, err := c.summarizer.Summarize(ctx, Transcript(history[:cut]))
	if err != nil {
		log.Warn().Err(err).
			Int("history_len", len(history)).
			Msg("summarization failed, truncating history")
		return append([]contractx.Message(nil), history[len(history)-c.capacity:]...)
	}

	out := make([]contractx.Message, 0, keep+1)
	out = append(out, contractx.SummaryMessage(summaryPrefix+summary))
	out = append(out, history[cut:]...)

	log.Debug().
		Int("history_len", len(history)).
		Int("compacted_len", len(out)).
		Msg("history compacted")
	return out
}

// Transcript flattens messages into "role: content" lines for the
// summarization prompt.
func Transcript(messages []contractx.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}
