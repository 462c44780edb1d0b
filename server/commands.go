package server

import (
	"context"
	"fmt"
	"strings"
)

// Agent is the slice of the orchestrator the server drives.
type Agent interface {
	HandleImpulse(ctx context.Context, text string) (string, error)
	IngestFact(ctx context.Context, fact string) (string, error)
	TriggerReflection(ctx context.Context) (int, error)
	TraceChain(rootID string) []string
	ClearCache()
	Save() error
}

// HandleCommand interprets a "!" control command. The second return is false
// when the input is not a command and should run through the cognitive cycle
// instead.
func HandleCommand(ctx context.Context, agent Agent, input string) (string, bool, error) {
	if !strings.HasPrefix(input, "!") {
		return "", false, nil
	}
	command, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "!save":
		if err := agent.Save(); err != nil {
			return "", true, fmt.Errorf("save failed: %w", err)
		}
		return "Memory state saved.", true, nil

	case "!clear_memory":
		agent.ClearCache()
		return "Conversation cache cleared.", true, nil

	case "!fact":
		if arg == "" {
			return "", true, fmt.Errorf("usage: !fact <statement>")
		}
		ack, err := agent.IngestFact(ctx, arg)
		if err != nil {
			return "", true, err
		}
		return ack, true, nil

	case "!reflect":
		merged, err := agent.TriggerReflection(ctx)
		if err != nil {
			return "", true, err
		}
		return fmt.Sprintf("Reflection complete: %d topic(s) merged.", merged), true, nil

	case "!trace":
		if arg == "" {
			return "", true, fmt.Errorf("usage: !trace <node_id>")
		}
		chain := agent.TraceChain(arg)
		if len(chain) == 0 {
			return "", true, fmt.Errorf("no node %s in the graph", arg)
		}
		return "Cognitive chain:\n" + strings.Join(chain, "\n"), true, nil

	default:
		return "", true, fmt.Errorf("unknown command %s", command)
	}
}
