package enforcement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Tool is the dispatch interface implemented by concrete tools. Execution
// receives the capability token so implementations can log the approved
// tier; validity checks happen in the gate before dispatch.
type Tool interface {
	Name() string
	Execute(ctx context.Context, action string, params json.RawMessage, token Token) (string, error)
}

// Proposed is a tool invocation as produced by the model. It has not been
// evaluated and has no execution entry point.
type Proposed struct {
	tool   string
	action string
	params json.RawMessage
}

// NewProposal builds a Proposed invocation from producer output.
func NewProposal(tool, action string, params json.RawMessage) Proposed {
	return Proposed{tool: tool, action: action, params: params}
}

// Tool returns the target tool name.
func (p Proposed) Tool() string { return p.tool }

// Action returns the requested action name.
func (p Proposed) Action() string { return p.action }

// Params returns the raw parameter bag.
func (p Proposed) Params() json.RawMessage { return p.params }

// transition is the only way to produce an Evaluated invocation.
func (p Proposed) transition() *Evaluated {
	return &Evaluated{
		id:     uuid.NewString(),
		tool:   p.tool,
		action: p.action,
		params: p.params,
	}
}

// Evaluated is an invocation that has passed through Evaluate exactly once.
// Only this type can reach execution, and only with a live token that was
// minted for it.
type Evaluated struct {
	id     string
	tool   string
	action string
	params json.RawMessage
}

// ID returns the identifier assigned at evaluation time. Allow tokens are
// bound to it.
func (e *Evaluated) ID() string { return e.id }

// Tool returns the target tool name.
func (e *Evaluated) Tool() string { return e.tool }

// Action returns the requested action name.
func (e *Evaluated) Action() string { return e.action }

// Params returns the raw parameter bag.
func (e *Evaluated) Params() json.RawMessage { return e.params }

// Execute consumes the token and dispatches to the tool implementation.
// The token must be live and must have been issued for this invocation;
// a second call with what was the same token fails with ErrTokenSpent.
func (e *Evaluated) Execute(ctx context.Context, tool Tool, token Token) (string, error) {
	if tool == nil {
		return "", fmt.Errorf("no implementation for tool %q", e.tool)
	}
	if tool.Name() != e.tool {
		return "", fmt.Errorf("invocation targets tool %q, implementation is %q", e.tool, tool.Name())
	}
	if err := token.spend(e.id); err != nil {
		return "", err
	}
	return tool.Execute(ctx, e.action, e.params, token)
}
