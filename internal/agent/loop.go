package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/MEKXH/cherub/internal/approval"
	"github.com/MEKXH/cherub/internal/audit"
	"github.com/MEKXH/cherub/internal/config"
	"github.com/MEKXH/cherub/internal/enforcement"
	"github.com/MEKXH/cherub/internal/tools"
)

const systemPrompt = `You are a coding agent working inside a sandboxed workspace.
Every tool call you make is checked against a capability policy before it
runs. Denied calls return the denial reason; adjust and continue. Calls that
need human approval return a pending notice; do not retry them in the same
run.`

// Loop drives the model/tool conversation. Every tool call the model emits
// is evaluated against the policy before dispatch; execution happens only
// with a token from that evaluation.
type Loop struct {
	model         model.ChatModel
	tools         *tools.Registry
	policy        *enforcement.Policy
	approvals     *approval.Service
	audit         *audit.Writer
	maxIterations int
	workspacePath string
	now           func() time.Time

	OnToolStart  func(name, args string)
	OnToolFinish func(name, result string, err error)
}

// NewLoop creates an agent loop with the built-in tools registered.
func NewLoop(cfg *config.Config, chatModel model.ChatModel, policy *enforcement.Policy) (*Loop, error) {
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	bash := tools.NewBashTool(
		cfg.Tools.Exec.Timeout,
		cfg.Tools.Exec.RestrictToWorkspace,
		workspacePath,
	)
	if err := registry.Register(bash); err != nil {
		return nil, err
	}
	if err := registry.Register(tools.NewFilesTool(workspacePath)); err != nil {
		return nil, err
	}

	approvals := approval.NewService(workspacePath)
	approvals.SetDefaultTTL(time.Duration(cfg.Approvals.TTLMinutes) * time.Minute)

	return &Loop{
		model:         chatModel,
		tools:         registry,
		policy:        policy,
		approvals:     approvals,
		audit:         audit.NewWriter(workspacePath),
		maxIterations: cfg.Agents.Defaults.MaxToolIterations,
		workspacePath: workspacePath,
		now:           time.Now,
	}, nil
}

// Tools returns the tool registry.
func (l *Loop) Tools() *tools.Registry {
	return l.tools
}

// Approvals returns the escalation approval service.
func (l *Loop) Approvals() *approval.Service {
	return l.approvals
}

func (l *Loop) bindTools() error {
	if l.model == nil {
		return nil
	}
	if binder, ok := l.model.(interface {
		BindTools([]*schema.ToolInfo) error
	}); ok {
		return binder.BindTools(toolInfos())
	}
	return nil
}

func toolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: "bash",
			Desc: "Run a shell command in the workspace.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"command": {
					Type:     schema.String,
					Desc:     "Shell command to run",
					Required: true,
				},
				"working_dir": {
					Type: schema.String,
					Desc: "Working directory relative to the workspace",
				},
			}),
		},
		{
			Name: "files",
			Desc: "Read, write, append, or list files in the workspace.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"action": {
					Type:     schema.String,
					Desc:     "File operation to perform",
					Required: true,
					Enum:     []string{"read", "write", "append", "list"},
				},
				"path": {
					Type:     schema.String,
					Desc:     "Path relative to the workspace",
					Required: true,
				},
				"content": {
					Type: schema.String,
					Desc: "Content for write and append",
				},
			}),
		},
	}
}

// Process runs one prompt through the model/tool loop and returns the
// final assistant content.
func (l *Loop) Process(ctx context.Context, prompt string) (string, error) {
	if l.model == nil {
		return "", fmt.Errorf("no model configured")
	}
	if err := l.bindTools(); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	slog.Info("processing prompt", "run_id", runID)

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	}

	var finalContent string

	for i := 0; i < l.maxIterations; i++ {
		resp, err := l.model.Generate(ctx, messages)
		if err != nil {
			return "", err
		}

		if resp.Content != "" {
			finalContent = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		messages = append(messages, resp)

		for _, tc := range resp.ToolCalls {
			result := l.handleToolCall(ctx, runID, tc)
			messages = append(messages, &schema.Message{
				Role:       schema.Tool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	if finalContent == "" {
		finalContent = "Processing complete."
	}
	return finalContent, nil
}

// handleToolCall gates one model-emitted tool call through policy
// evaluation and, on Allow, dispatches it. The returned string goes back
// to the model as the tool result whatever the verdict.
func (l *Loop) handleToolCall(ctx context.Context, runID string, tc schema.ToolCall) string {
	name := tc.Function.Name
	params := json.RawMessage(tc.Function.Arguments)

	if l.OnToolStart != nil {
		l.OnToolStart(name, tc.Function.Arguments)
	}

	action := toolAction(name, params)
	params, command := ensureCommand(name, action, params)

	proposal := enforcement.NewProposal(name, action, params)
	inv, decision := enforcement.EvaluateWithGrants(proposal, l.policy, l.approvals)

	tierLabel := ""
	if decision.Verdict != enforcement.VerdictReject {
		tierLabel = decision.Tier.String()
	}

	l.appendAudit(audit.Event{
		Time:    l.now().UTC(),
		Type:    audit.TypeDecision,
		RunID:   runID,
		Tool:    name,
		Action:  action,
		Command: command,
		Tier:    tierLabel,
		Verdict: string(decision.Verdict),
		Reason:  decision.Reason,
	})

	var result string
	var execErr error

	switch decision.Verdict {
	case enforcement.VerdictAllow:
		if decision.Tier == enforcement.TierCommit {
			if _, err := l.approvals.Redeem(name, command); err != nil {
				slog.Warn("redeem grant failed", "run_id", runID, "tool", name, "error", err)
			}
		}
		tool, ok := l.tools.Get(name)
		if !ok {
			result = fmt.Sprintf("Error: unknown tool %q", name)
		} else {
			result, execErr = inv.Execute(ctx, tool, decision.Token)
			if execErr != nil {
				result = "Error: " + execErr.Error()
			}
			l.appendAudit(audit.Event{
				Time:    l.now().UTC(),
				Type:    audit.TypeExecution,
				RunID:   runID,
				Tool:    name,
				Action:  action,
				Command: command,
				Tier:    tierLabel,
				Error:   errString(execErr),
			})
		}
	case enforcement.VerdictEscalate:
		req, err := l.approvals.Create(approval.CreateInput{
			Tool:    name,
			Action:  action,
			Command: command,
			Tier:    decision.Tier.String(),
			Reason:  decision.Reason,
		})
		if err != nil {
			result = "Error: escalation failed: " + err.Error()
		} else {
			result = fmt.Sprintf("Approval required: request %s is pending. Run `cherub approval approve %s` to grant it.", req.ID, req.ID)
		}
	default:
		result = "Denied by policy: " + decision.Reason
	}

	slog.Info("tool call gated",
		"run_id", runID,
		"tool", name,
		"action", action,
		"verdict", string(decision.Verdict),
		"tier", tierLabel,
	)

	if l.OnToolFinish != nil {
		l.OnToolFinish(name, result, execErr)
	}
	return result
}

// toolAction derives the action name for an invocation. Bash has a single
// implicit action; file operations carry theirs in the arguments.
func toolAction(tool string, params json.RawMessage) string {
	if tool == "bash" {
		return "run"
	}
	var bag struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(params, &bag); err != nil {
		return ""
	}
	return strings.TrimSpace(bag.Action)
}

// ensureCommand guarantees the parameter bag carries the canonical command
// the policy engine matches on, synthesizing it for file operations. The
// command is returned alongside for audit records; invocations with no
// derivable command pass through unchanged and get rejected downstream.
func ensureCommand(tool, action string, params json.RawMessage) (json.RawMessage, string) {
	command, ok := tools.CanonicalCommand(tool, action, params)
	if !ok {
		return params, ""
	}

	var bag map[string]json.RawMessage
	if err := json.Unmarshal(params, &bag); err != nil {
		return params, command
	}
	if _, present := bag["command"]; present {
		return params, command
	}

	encoded, err := json.Marshal(command)
	if err != nil {
		return params, command
	}
	bag["command"] = encoded
	merged, err := json.Marshal(bag)
	if err != nil {
		return params, command
	}
	return merged, command
}

func (l *Loop) appendAudit(event audit.Event) {
	if l.audit == nil {
		return
	}
	if err := l.audit.Append(event); err != nil {
		slog.Warn("audit append failed", "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
