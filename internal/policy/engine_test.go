package policy

import (
	"context"
	"testing"
)

const blockingPolicy = `
package input_policy

default decision = "allow"

decision = "block" {
	input.event_name == "session:shutdown"
}

decision = "block" {
	input.payload.command == "rm"
}
`

const reasonPolicy = `
package input_policy

default decision = {"decision": "allow", "reason": ""}

decision = {"decision": "block", "reason": "destructive command"} {
	input.payload.command == "rm"
}
`

func TestDefaultPolicyAllowsEverything(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	decision, _, err := engine.Evaluate(ctx, map[string]interface{}{
		"event_name": "session:input",
		"payload":    map[string]interface{}{"text": "anything"},
		"session_id": "s1",
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision != DecisionAllow {
		t.Fatalf("expected allow, got %q", decision)
	}
}

func TestPolicyBlocksMatchingInput(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, blockingPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	decision, _, err := engine.Evaluate(ctx, map[string]interface{}{
		"event_name": "session:shutdown",
		"session_id": "s1",
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision != DecisionBlock {
		t.Fatalf("expected block, got %q", decision)
	}

	decision, _, err = engine.Evaluate(ctx, map[string]interface{}{
		"event_name": "session:input",
		"payload":    map[string]interface{}{"command": "rm"},
		"session_id": "s1",
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision != DecisionBlock {
		t.Fatalf("expected block, got %q", decision)
	}

	decision, _, err = engine.Evaluate(ctx, map[string]interface{}{
		"event_name": "session:input",
		"payload":    map[string]interface{}{"command": "ls"},
		"session_id": "s1",
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision != DecisionAllow {
		t.Fatalf("expected allow, got %q", decision)
	}
}

func TestPolicyObjectDecisionCarriesReason(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, reasonPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	decision, reason, err := engine.Evaluate(ctx, map[string]interface{}{
		"event_name": "session:input",
		"payload":    map[string]interface{}{"command": "rm"},
		"session_id": "s1",
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision != DecisionBlock {
		t.Fatalf("expected block, got %q", decision)
	}
	if reason != "destructive command" {
		t.Fatalf("expected reason, got %q", reason)
	}
}

func TestInvalidPolicyRejected(t *testing.T) {
	if _, err := NewEngine(context.Background(), "not rego at all {"); err == nil {
		t.Fatal("expected error for invalid policy")
	}
}
