// Package attendant runs the dialogue loop: generate, maybe act on tool
// requests, generate again, until the model produces a plain reply.
package attendant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	compactx "github.com/trenchburger/attendant/agent/compact"
	contractx "github.com/trenchburger/attendant/agent/contract"
	statex "github.com/trenchburger/attendant/agent/state"
)

const (
	// DefaultMaxCycles bounds generate/act alternations per request so a
	// model that keeps requesting tools cannot spin forever.
	DefaultMaxCycles = 10

	ApologyReply  = "Sorry, there was an error processing your request."
	FallbackReply = "I processed your request, but didn't have a specific reply."

	GreetingText = "Welcome to Bada Bing Burger, my name is Carl, whaddya want?"
)

type Config struct {
	MaxCycles int
}

// Service orchestrates one utterance end to end: working copy of history,
// the generate/act loop, commit on success, rollback (no commit) on
// failure, and optional speech synthesis.
type Service struct {
	sessions  *statex.Manager
	generator contractx.Generator
	compactor *compactx.Compactor
	tools     contractx.Invoker
	speech    contractx.Synthesizer // nil disables audio

	maxCycles int
}

// Reply is the outcome of a processed utterance. Audio is nil when not
// requested or when synthesis degraded to text-only.
type Reply struct {
	Text  string
	Audio []byte
}

func New(
	sessions *statex.Manager,
	generator contractx.Generator,
	compactor *compactx.Compactor,
	tools contractx.Invoker,
	speech contractx.Synthesizer,
	cfg Config,
) (*Service, error) {
	if sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if compactor == nil {
		return nil, errors.New("compactor is required")
	}
	if tools == nil {
		return nil, errors.New("tool invoker is required")
	}

	maxCycles := cfg.MaxCycles
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}

	return &Service{
		sessions:  sessions,
		generator: generator,
		compactor: compactor,
		tools:     tools,
		speech:    speech,
		maxCycles: maxCycles,
	}, nil
}

// ProcessMessage runs the full loop for one utterance. On fatal failure the
// committed history is untouched and the fixed apology is returned along
// with the error.
func (s *Service) ProcessMessage(ctx context.Context, sessionID, text string, wantAudio bool) (Reply, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Reply{Text: ApologyReply}, statex.ErrInvalidSession
	}
	if strings.TrimSpace(text) == "" {
		return Reply{Text: ApologyReply}, fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	}

	unlock := s.sessions.Acquire(sessionID)
	defer unlock()

	working, err := s.sessions.WorkingCopy(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("load session history failed")
		return Reply{Text: ApologyReply}, fmt.Errorf("%w: load session: %v", contractx.ErrDependency, err)
	}
	working = append(working, contractx.UserMessage(text))

	log.Debug().Str("session_id", sessionID).Int("history_len", len(working)).Msg("running dialogue loop")

	final, err := s.runLoop(ctx, working)
	if err != nil {
		// Working history is discarded; committed state stays at the last
		// known-good turn so the request can simply be retried.
		log.Error().Err(err).Str("session_id", sessionID).Msg("dialogue loop failed, session rolled back")
		return Reply{Text: ApologyReply}, err
	}

	if err := s.sessions.Commit(ctx, sessionID, final); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("commit session history failed")
		return Reply{Text: ApologyReply}, fmt.Errorf("%w: commit session: %v", contractx.ErrDependency, err)
	}

	reply := Reply{Text: ExtractReply(final)}
	if wantAudio {
		reply.Audio = s.synthesize(ctx, sessionID, reply.Text)
	}
	return reply, nil
}

// runLoop alternates between the generation step and tool execution until
// the model returns a plain reply, then hands back the full working
// history. Tool-level failures are already folded into outcome strings by
// the registry; any error escaping here is fatal for the request.
func (s *Service) runLoop(ctx context.Context, working []contractx.Message) ([]contractx.Message, error) {
	for cycle := 0; cycle < s.maxCycles; cycle++ {
		view := working
		if s.compactor.NeedsCompaction(view) {
			view = s.compactor.Compact(ctx, view)
		}

		msg, err := s.generator.Complete(ctx, view)
		if err != nil {
			return nil, err
		}
		working = append(working, msg)

		if !msg.IsToolRequest() {
			return working, nil
		}

		// Results are appended in the order the calls were requested.
		for _, call := range msg.ToolCalls {
			outcome, err := s.tools.Invoke(ctx, call.Name, call.Arguments)
			if err != nil {
				return nil, err
			}
			working = append(working, contractx.ToolResultMessage(call.ID, outcome))
		}
	}
	return nil, fmt.Errorf("%w: gave up after %d cycles", contractx.ErrLoopExceeded, s.maxCycles)
}

// ExtractReply surfaces the reply from a finished history: the most recent
// assistant message with content and no pending tool request; failing that,
// the most recent tool result; failing that, a fixed fallback.
func ExtractReply(history []contractx.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role == contractx.RoleAssistant && strings.TrimSpace(m.Content) != "" && len(m.ToolCalls) == 0 {
			return m.Content
		}
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == contractx.RoleToolResult {
			return "Action completed: " + history[i].Content
		}
	}
	return FallbackReply
}

// Greeting synthesizes the fixed greeting line. Unlike reply audio, a
// greeting exists only as audio, so synthesis failure is an error.
func (s *Service) Greeting(ctx context.Context) ([]byte, error) {
	if s.speech == nil {
		return nil, fmt.Errorf("%w: speech synthesis is not configured", contractx.ErrDependency)
	}
	audio, err := s.speech.Synthesize(ctx, GreetingText)
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// Reset discards a session's history.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	unlock := s.sessions.Acquire(sessionID)
	defer unlock()
	return s.sessions.Reset(ctx, sessionID)
}

// History returns the committed history, for inspection.
func (s *Service) History(ctx context.Context, sessionID string) ([]contractx.Message, error) {
	return s.sessions.WorkingCopy(ctx, sessionID)
}

func (s *Service) synthesize(ctx context.Context, sessionID, text string) []byte {
	if s.speech == nil {
		return nil
	}
	audio, err := s.speech.Synthesize(ctx, text)
	if err != nil {
		// Audio is best effort; the text reply still goes out.
		log.Warn().Err(err).Str("session_id", sessionID).Msg("speech synthesis failed, replying text-only")
		return nil
	}
	return audio
}
