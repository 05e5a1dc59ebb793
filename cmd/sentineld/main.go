// Command sentineld is a thin demo binary that wires an Engine together and
// runs it against a handful of scripted scenarios, in the spirit of the
// teacher's ocx-cli: a small command surface over the core, not a
// transport.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ocx/sentinel/internal/arbiter"
	"github.com/ocx/sentinel/internal/config"
	"github.com/ocx/sentinel/internal/engine"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "demo":
		runDemo()
	case "version":
		fmt.Printf("sentineld v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sentineld v` + version + `

Usage: sentineld <command>

Commands:
  demo      Run the scripted evaluation scenarios against a fresh Engine
  version   Print version
  help      Show this help`)
}

func runDemo() {
	eng := engine.New(config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	report := func(name string, resp engine.Response) {
		slog.Info("scenario result", "scenario", name, "decision", resp.Decision, "reasons", resp.Reasons, "circuit_state", resp.CircuitState)
	}

	// Scenario 1: happy path.
	r1 := eng.Evaluate(ctx, engine.Request{
		AgentID: "a1",
		Frame:   "⊕◊▶β",
		Action:  arbiter.Action{Tool: "noop"},
	})
	report("happy-path", r1)

	// Scenario 2: structural block, frame too short.
	r2 := eng.Evaluate(ctx, engine.Request{
		AgentID: "a1",
		Frame:   "▶",
		Action:  arbiter.Action{Tool: "noop"},
	})
	report("structural-block", r2)

	// Scenario 3: chain weakening.
	r3 := eng.Evaluate(ctx, engine.Request{
		AgentID:     "a1",
		Frame:       "⊖◊▶β",
		ParentFrame: "⊕◊▼α",
		Action:      arbiter.Action{Tool: "noop"},
	})
	report("chain-weakening", r3)

	// Scenario 4: forbidden constraint not inherited.
	r4 := eng.Evaluate(ctx, engine.Request{
		AgentID:     "a1",
		Frame:       "⊕◊▶β",
		ParentFrame: "⊕◊⛔▼α",
		Action:      arbiter.Action{Tool: "noop"},
	})
	report("forbidden-not-inherited", r4)

	// Scenario 5: risky hold.
	r5 := eng.Evaluate(ctx, engine.Request{
		AgentID: "a1",
		Frame:   "⊕◊⛔▶β",
		Action:  arbiter.Action{Tool: "noop"},
	})
	report("risky-hold", r5)

	// Scenario 6: circuit open after 5 consecutive failures (the half-open
	// recovery is not shown).
	runCircuitScenario(ctx, eng)
}

func runCircuitScenario(ctx context.Context, eng *engine.Engine) {
	agentID := "a2"

	ok := eng.Evaluate(ctx, engine.Request{
		AgentID: agentID,
		Frame:   "⊕◊▶β",
		Action:  arbiter.Action{Tool: "noop"},
	})
	slog.Info("scenario result", "scenario", "circuit-open-baseline", "decision", ok.Decision)

	for i := 0; i < 5; i++ {
		eng.Report(agentID, "⊕◊▶β", []string{"observed"}, false, "", nil)
	}

	blocked := eng.Evaluate(ctx, engine.Request{
		AgentID: agentID,
		Frame:   "⊕◊▶β",
		Action:  arbiter.Action{Tool: "noop"},
	})
	slog.Info("scenario result", "scenario", "circuit-open", "decision", blocked.Decision, "circuit_state", blocked.CircuitState)

	// Advance past cool-down by driving successes after the fact is not
	// possible without a real clock here; a demo binary cannot fast-forward
	// time the way tests can with an injected clock, so this only
	// demonstrates the open state, not the half-open recovery path.
	time.Sleep(10 * time.Millisecond)
}
