package attendant

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	compactx "github.com/trenchburger/attendant/agent/compact"
	contractx "github.com/trenchburger/attendant/agent/contract"
	statex "github.com/trenchburger/attendant/agent/state"
	toolx "github.com/trenchburger/attendant/agent/tool"
	orderx "github.com/trenchburger/attendant/order"
)

type fakeGenerator struct {
	responses []contractx.Message
	err       error
	calls     int
	seenLens  []int
	seen      [][]contractx.Message
}

func (f *fakeGenerator) Complete(_ context.Context, history []contractx.Message) (contractx.Message, error) {
	f.calls++
	f.seenLens = append(f.seenLens, len(history))
	f.seen = append(f.seen, contractx.CloneHistory(history))
	if f.err != nil {
		return contractx.Message{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		return contractx.Message{}, fmt.Errorf("no generator response left at call=%d", f.calls)
	}
	return f.responses[idx], nil
}

type invocationRecord struct {
	name string
	args map[string]any
}

type fakeInvoker struct {
	outcomes map[string]string
	err      error
	calls    []invocationRecord
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, args map[string]any) (string, error) {
	f.calls = append(f.calls, invocationRecord{name: name, args: args})
	if f.err != nil {
		return "", f.err
	}
	if out, ok := f.outcomes[name]; ok {
		return out, nil
	}
	return "ok", nil
}

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

type fakeSynthesizer struct {
	audio []byte
	err   error
	calls int
	texts []string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.calls++
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func newTestService(t *testing.T, gen contractx.Generator, inv contractx.Invoker, speech contractx.Synthesizer, capacity int) (*Service, *statex.Manager) {
	t.Helper()

	manager, err := statex.NewManager(statex.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	compactor, err := compactx.New(capacity, &fakeSummarizer{summary: "earlier turns"})
	if err != nil {
		t.Fatalf("compact.New() error = %v", err)
	}
	svc, err := New(manager, gen, compactor, inv, speech, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return svc, manager
}

func TestProcessMessagePlainReply(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		responses: []contractx.Message{
			contractx.AssistantMessage("One burger, comin' up.", nil),
		},
	}
	inv := &fakeInvoker{}
	svc, manager := newTestService(t, gen, inv, nil, compactx.DefaultCapacity)

	reply, err := svc.ProcessMessage(context.Background(), "s1", "one burger", false)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if reply.Text != "One burger, comin' up." {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if len(inv.calls) != 0 {
		t.Fatalf("expected no tool calls, got %d", len(inv.calls))
	}

	history, err := manager.WorkingCopy(context.Background(), "s1")
	if err != nil {
		t.Fatalf("WorkingCopy() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("committed history len = %d, want 2", len(history))
	}
	if history[0].Role != contractx.RoleUser || history[1].Role != contractx.RoleAssistant {
		t.Fatalf("unexpected committed roles: %+v", history)
	}
}

func TestProcessMessageToolResultsKeepRequestOrder(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		responses: []contractx.Message{
			contractx.AssistantMessage("", []contractx.ToolCall{
				{ID: "call-a", Name: "place_order", Arguments: map[string]any{"line_items": []any{}}},
				{ID: "call-b", Name: "list_active_orders"},
			}),
			contractx.AssistantMessage("Done and done.", nil),
		},
	}
	inv := &fakeInvoker{outcomes: map[string]string{
		"place_order":        "placed",
		"list_active_orders": "listed",
	}}
	svc, manager := newTestService(t, gen, inv, nil, compactx.DefaultCapacity)

	reply, err := svc.ProcessMessage(context.Background(), "s1", "two burgers and what's queued?", false)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if reply.Text != "Done and done." {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}

	if len(inv.calls) != 2 || inv.calls[0].name != "place_order" || inv.calls[1].name != "list_active_orders" {
		t.Fatalf("unexpected invocation order: %+v", inv.calls)
	}

	history, err := manager.WorkingCopy(context.Background(), "s1")
	if err != nil {
		t.Fatalf("WorkingCopy() error = %v", err)
	}
	// user, tool request, result A, result B, final reply
	if len(history) != 5 {
		t.Fatalf("committed history len = %d, want 5", len(history))
	}
	if history[2].Content != "placed" || history[2].ToolCallID != "call-a" {
		t.Fatalf("first tool result = %+v, want outcome of call-a", history[2])
	}
	if history[3].Content != "listed" || history[3].ToolCallID != "call-b" {
		t.Fatalf("second tool result = %+v, want outcome of call-b", history[3])
	}
}

func TestProcessMessageRollsBackOnGenerationFailure(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: fmt.Errorf("%w: upstream 503", contractx.ErrModelInvoke)}
	svc, manager := newTestService(t, gen, &fakeInvoker{}, nil, compactx.DefaultCapacity)

	before := []contractx.Message{
		contractx.UserMessage("one fries"),
		contractx.AssistantMessage("You got it.", nil),
	}
	if err := manager.Commit(context.Background(), "s1", before); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	reply, err := svc.ProcessMessage(context.Background(), "s1", "actually make it two", false)
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("ProcessMessage() error = %v, want ErrModelInvoke", err)
	}
	if reply.Text != ApologyReply {
		t.Fatalf("reply = %q, want apology", reply.Text)
	}

	after, err := manager.WorkingCopy(context.Background(), "s1")
	if err != nil {
		t.Fatalf("WorkingCopy() error = %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("history changed on failure:\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestProcessMessageRollsBackOnUnknownTool(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		responses: []contractx.Message{
			contractx.AssistantMessage("", []contractx.ToolCall{
				{ID: "call-x", Name: "refund_order"},
			}),
		},
	}
	inv := &fakeInvoker{err: fmt.Errorf("%w: refund_order", contractx.ErrUnknownTool)}
	svc, manager := newTestService(t, gen, inv, nil, compactx.DefaultCapacity)

	_, err := svc.ProcessMessage(context.Background(), "s1", "gimme a refund", false)
	if !errors.Is(err, contractx.ErrUnknownTool) {
		t.Fatalf("ProcessMessage() error = %v, want ErrUnknownTool", err)
	}

	history, err := manager.WorkingCopy(context.Background(), "s1")
	if err != nil {
		t.Fatalf("WorkingCopy() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history after rollback, got %d messages", len(history))
	}
}

func TestProcessMessageLoopExceeded(t *testing.T) {
	t.Parallel()

	// A generator that always asks for another tool call never terminates
	// on its own; the cycle bound has to cut it off.
	responses := make([]contractx.Message, DefaultMaxCycles+1)
	for i := range responses {
		responses[i] = contractx.AssistantMessage("", []contractx.ToolCall{
			{ID: fmt.Sprintf("call-%d", i), Name: "list_active_orders"},
		})
	}
	gen := &fakeGenerator{responses: responses}
	svc, manager := newTestService(t, gen, &fakeInvoker{}, nil, compactx.DefaultCapacity)

	_, err := svc.ProcessMessage(context.Background(), "s1", "hello", false)
	if !errors.Is(err, contractx.ErrLoopExceeded) {
		t.Fatalf("ProcessMessage() error = %v, want ErrLoopExceeded", err)
	}
	if gen.calls != DefaultMaxCycles {
		t.Fatalf("generator called %d times, want %d", gen.calls, DefaultMaxCycles)
	}

	history, err := manager.WorkingCopy(context.Background(), "s1")
	if err != nil {
		t.Fatalf("WorkingCopy() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected rollback, got %d committed messages", len(history))
	}
}

func TestProcessMessageCompactsGenerationView(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		responses: []contractx.Message{
			contractx.AssistantMessage("Still here.", nil),
		},
	}
	svc, manager := newTestService(t, gen, &fakeInvoker{}, nil, 6)

	seeded := make([]contractx.Message, 0, 9)
	for i := 0; i < 9; i++ {
		seeded = append(seeded, contractx.UserMessage(fmt.Sprintf("turn-%d", i)))
	}
	if err := manager.Commit(context.Background(), "s1", seeded); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if _, err := svc.ProcessMessage(context.Background(), "s1", "still with me?", false); err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}

	// Working history is 10 > capacity 6, so the model sees summary + last 3.
	if gen.seenLens[0] != 4 {
		t.Fatalf("generation view len = %d, want 4", gen.seenLens[0])
	}
	if gen.seen[0][0].Role != contractx.RoleSummary {
		t.Fatalf("view[0].Role = %s, want summary", gen.seen[0][0].Role)
	}
	if gen.seen[0][3].Content != "still with me?" {
		t.Fatalf("pending turn missing from view: %+v", gen.seen[0])
	}

	// The committed history keeps everything.
	history, err := manager.WorkingCopy(context.Background(), "s1")
	if err != nil {
		t.Fatalf("WorkingCopy() error = %v", err)
	}
	if len(history) != 11 {
		t.Fatalf("committed history len = %d, want 11", len(history))
	}
}

func TestProcessMessageAudioDegradesToTextOnly(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		responses: []contractx.Message{
			contractx.AssistantMessage("Loud and clear.", nil),
		},
	}
	speech := &fakeSynthesizer{err: errors.New("tts offline")}
	svc, _ := newTestService(t, gen, &fakeInvoker{}, speech, compactx.DefaultCapacity)

	reply, err := svc.ProcessMessage(context.Background(), "s1", "say it", true)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if reply.Text != "Loud and clear." {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if reply.Audio != nil {
		t.Fatal("expected nil audio after synthesis failure")
	}
	if speech.calls != 1 {
		t.Fatalf("synthesizer called %d times, want 1", speech.calls)
	}
}

func TestProcessMessageAudioAttached(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		responses: []contractx.Message{
			contractx.AssistantMessage("Here ya go.", nil),
		},
	}
	speech := &fakeSynthesizer{audio: []byte{0x49, 0x44, 0x33}}
	svc, _ := newTestService(t, gen, &fakeInvoker{}, speech, compactx.DefaultCapacity)

	reply, err := svc.ProcessMessage(context.Background(), "s1", "say it", true)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if len(reply.Audio) != 3 {
		t.Fatalf("audio len = %d, want 3", len(reply.Audio))
	}
	if speech.texts[0] != "Here ya go." {
		t.Fatalf("synthesized text = %q", speech.texts[0])
	}
}

func TestProcessMessageRejectsEmptyUtterance(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &fakeGenerator{}, &fakeInvoker{}, nil, compactx.DefaultCapacity)

	reply, err := svc.ProcessMessage(context.Background(), "s1", "   ", false)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("ProcessMessage() error = %v, want ErrValidation", err)
	}
	if reply.Text != ApologyReply {
		t.Fatalf("reply = %q, want apology", reply.Text)
	}
}

func TestExtractReply(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		history []contractx.Message
		want    string
	}{
		{
			name: "latest assistant content wins",
			history: []contractx.Message{
				contractx.UserMessage("hi"),
				contractx.AssistantMessage("first", nil),
				contractx.UserMessage("more"),
				contractx.AssistantMessage("second", nil),
			},
			want: "second",
		},
		{
			name: "assistant tool request is skipped",
			history: []contractx.Message{
				contractx.AssistantMessage("real reply", nil),
				contractx.AssistantMessage("", []contractx.ToolCall{{Name: "place_order"}}),
			},
			want: "real reply",
		},
		{
			name: "tool result fallback",
			history: []contractx.Message{
				contractx.UserMessage("cancel it"),
				contractx.AssistantMessage("", []contractx.ToolCall{{Name: "cancel_order"}}),
				contractx.ToolResultMessage("call-1", "Order ID 7 has been successfully cancelled."),
			},
			want: "Action completed: Order ID 7 has been successfully cancelled.",
		},
		{
			name:    "fixed fallback",
			history: []contractx.Message{contractx.UserMessage("hello?")},
			want:    FallbackReply,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := ExtractReply(tc.history); got != tc.want {
				t.Fatalf("ExtractReply() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGreetingRequiresSpeech(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &fakeGenerator{}, &fakeInvoker{}, nil, compactx.DefaultCapacity)
	if _, err := svc.Greeting(context.Background()); !errors.Is(err, contractx.ErrDependency) {
		t.Fatalf("Greeting() error = %v, want ErrDependency", err)
	}
}

func TestEndToEndPlaceOrderAgainstLedger(t *testing.T) {
	t.Parallel()

	ledger := orderx.NewMemoryLedger()
	registry := toolx.NewRegistry(ledger)

	gen := &fakeGenerator{
		responses: []contractx.Message{
			contractx.AssistantMessage("", []contractx.ToolCall{
				{
					ID:   "call-1",
					Name: toolx.ToolPlaceOrder,
					Arguments: map[string]any{
						"line_items": []any{
							map[string]any{"item": "burger", "quantity": 2},
							map[string]any{"item": "fries", "quantity": 1},
						},
					},
				},
			}),
			contractx.AssistantMessage("Two burgers and a fries, order number 1. Anything else?", nil),
		},
	}
	svc, manager := newTestService(t, gen, registry, nil, compactx.DefaultCapacity)

	reply, err := svc.ProcessMessage(context.Background(), "drive-thru", "gimme two burgers and a fries", false)
	if err != nil {
		t.Fatalf("ProcessMessage() error = %v", err)
	}
	if reply.Text != "Two burgers and a fries, order number 1. Anything else?" {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}

	history, err := manager.WorkingCopy(context.Background(), "drive-thru")
	if err != nil {
		t.Fatalf("WorkingCopy() error = %v", err)
	}
	var toolResult string
	for _, m := range history {
		if m.Role == contractx.RoleToolResult {
			toolResult = m.Content
		}
	}
	if !strings.HasPrefix(toolResult, "Order placed successfully! Your order ID is 1") {
		t.Fatalf("unexpected tool result: %q", toolResult)
	}

	orders, err := ledger.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(orders) != 1 || orders[0].TotalItems != 3 || orders[0].Status != orderx.StatusPlaced {
		t.Fatalf("unexpected ledger state: %+v", orders)
	}

	totals, err := ledger.ActiveTotals(context.Background())
	if err != nil {
		t.Fatalf("ActiveTotals() error = %v", err)
	}
	want := map[string]int{"burger": 2, "fries": 1, "drink": 0}
	if !reflect.DeepEqual(totals, want) {
		t.Fatalf("totals = %v, want %v", totals, want)
	}
}
