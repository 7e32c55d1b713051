package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/MEKXH/cherub/internal/approval"
	"github.com/MEKXH/cherub/internal/config"
	"github.com/MEKXH/cherub/internal/enforcement"
)

const loopPolicyDoc = `
[tools.bash]
enabled = true

[tools.bash.actions.read]
tier = "observe"
patterns = ["^ls", "^echo ", "^pwd$"]

[tools.bash.actions.write]
tier = "act"
patterns = ["^mkdir ", "^touch "]

[tools.bash.actions.destructive]
tier = "commit"
patterns = ["^rm ", "^sudo "]

[tools.files]
enabled = true

[tools.files.actions.read]
tier = "observe"
patterns = ["^read ", "^list "]

[tools.files.actions.write]
tier = "act"
patterns = ["^write ", "^append "]
`

// gateTestModel emits one scripted tool call, then echoes the tool result
// back as the final assistant message.
type gateTestModel struct {
	toolName string
	argsJSON string
	emitted  bool
}

func (m *gateTestModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	var lastToolResult string
	for _, msg := range input {
		if msg.Role == schema.Tool {
			lastToolResult = msg.Content
		}
	}

	if !m.emitted {
		m.emitted = true
		return &schema.Message{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{
				{
					ID: "gate-test-call",
					Function: schema.FunctionCall{
						Name:      m.toolName,
						Arguments: m.argsJSON,
					},
				},
			},
		}, nil
	}

	return &schema.Message{
		Role:    schema.Assistant,
		Content: lastToolResult,
	}, nil
}

func (m *gateTestModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (m *gateTestModel) BindTools(toolInfos []*schema.ToolInfo) error {
	return nil
}

func newTestLoop(t *testing.T, fake model.ChatModel) *Loop {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.WorkspaceMode = "path"
	cfg.Agents.Defaults.Workspace = t.TempDir()

	policy, err := enforcement.Parse(loopPolicyDoc)
	if err != nil {
		t.Fatalf("Parse policy error: %v", err)
	}

	loop, err := NewLoop(cfg, fake, policy)
	if err != nil {
		t.Fatalf("NewLoop() error: %v", err)
	}
	return loop
}

func TestProcess_AllowedCommandExecutes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on sh")
	}

	loop := newTestLoop(t, &gateTestModel{
		toolName: "bash",
		argsJSON: `{"command":"echo gated-ok"}`,
	})

	resp, err := loop.Process(context.Background(), "run a harmless echo")
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !strings.Contains(resp, "gated-ok") {
		t.Fatalf("expected tool output in response, got: %s", resp)
	}
}

func TestProcess_CommitCommandEscalates(t *testing.T) {
	loop := newTestLoop(t, &gateTestModel{
		toolName: "bash",
		argsJSON: `{"command":"rm -rf build"}`,
	})

	resp, err := loop.Process(context.Background(), "clean the build dir")
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !strings.Contains(resp, "Approval required") {
		t.Fatalf("expected pending approval response, got: %s", resp)
	}

	pending, err := loop.Approvals().List(approval.Query{Status: approval.StatusPending})
	if err != nil {
		t.Fatalf("List pending error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(pending))
	}
	if pending[0].Command != "rm -rf build" {
		t.Fatalf("unexpected pending command: %q", pending[0].Command)
	}
}

func TestProcess_UnmatchedCommandDenied(t *testing.T) {
	loop := newTestLoop(t, &gateTestModel{
		toolName: "bash",
		argsJSON: `{"command":"curl https://example.com"}`,
	})

	resp, err := loop.Process(context.Background(), "fetch a url")
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !strings.Contains(resp, "Denied by policy") {
		t.Fatalf("expected denial response, got: %s", resp)
	}
}

func TestProcess_ApprovedGrantExecutesAndRedeems(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test relies on sh")
	}

	loop := newTestLoop(t, &gateTestModel{
		toolName: "bash",
		argsJSON: `{"command":"rm -f absent.tmp"}`,
	})

	req, err := loop.Approvals().Create(approval.CreateInput{
		Tool:    "bash",
		Command: "rm -f absent.tmp",
		Tier:    "commit",
	})
	if err != nil {
		t.Fatalf("Create approval error: %v", err)
	}
	if _, err := loop.Approvals().Approve(req.ID, approval.DecisionInput{DecidedBy: "owner"}); err != nil {
		t.Fatalf("Approve error: %v", err)
	}

	resp, err := loop.Process(context.Background(), "remove the temp file")
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if strings.Contains(resp, "Approval required") || strings.Contains(resp, "Denied by policy") {
		t.Fatalf("expected execution, got: %s", resp)
	}

	redeemed, err := loop.Approvals().List(approval.Query{Status: approval.StatusRedeemed})
	if err != nil {
		t.Fatalf("List redeemed error: %v", err)
	}
	if len(redeemed) != 1 {
		t.Fatalf("expected grant to be redeemed, got %d redeemed requests", len(redeemed))
	}
}

func TestProcess_FilesToolGatedByCanonicalCommand(t *testing.T) {
	loop := newTestLoop(t, &gateTestModel{
		toolName: "files",
		argsJSON: `{"action":"read","path":"notes.txt"}`,
	})

	notesPath := filepath.Join(loop.workspacePath, "notes.txt")
	if err := os.WriteFile(notesPath, []byte("hello from notes"), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	resp, err := loop.Process(context.Background(), "read the notes file")
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if !strings.Contains(resp, "hello from notes") {
		t.Fatalf("expected file content in response, got: %s", resp)
	}
}

func TestProcess_WritesAuditTrail(t *testing.T) {
	loop := newTestLoop(t, &gateTestModel{
		toolName: "bash",
		argsJSON: `{"command":"curl https://example.com"}`,
	})

	if _, err := loop.Process(context.Background(), "fetch a url"); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	auditPath := filepath.Join(loop.workspacePath, "state", "audit.jsonl")
	data, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("ReadFile audit error: %v", err)
	}
	if !strings.Contains(string(data), `"verdict":"reject"`) {
		t.Fatalf("expected reject decision in audit trail, got: %s", data)
	}
}

func TestToolAction(t *testing.T) {
	if got := toolAction("bash", json.RawMessage(`{"command":"ls"}`)); got != "run" {
		t.Fatalf("expected bash action run, got %q", got)
	}
	if got := toolAction("files", json.RawMessage(`{"action":"write","path":"a.txt"}`)); got != "write" {
		t.Fatalf("expected files action write, got %q", got)
	}
	if got := toolAction("files", json.RawMessage(`not-json`)); got != "" {
		t.Fatalf("expected empty action for malformed params, got %q", got)
	}
}

func TestEnsureCommand(t *testing.T) {
	params, command := ensureCommand("files", "write", json.RawMessage(`{"action":"write","path":"a.txt"}`))
	if command != "write a.txt" {
		t.Fatalf("expected synthesized command, got %q", command)
	}
	var bag map[string]string
	if err := json.Unmarshal(params, &bag); err != nil {
		t.Fatalf("unmarshal merged params error: %v", err)
	}
	if bag["command"] != "write a.txt" {
		t.Fatalf("expected command injected into params, got %q", bag["command"])
	}

	raw := json.RawMessage(`{"command":"echo hi"}`)
	params, command = ensureCommand("bash", "run", raw)
	if command != "echo hi" {
		t.Fatalf("expected explicit command, got %q", command)
	}
	if string(params) != string(raw) {
		t.Fatal("explicit command params must pass through unchanged")
	}

	params, command = ensureCommand("bash", "run", json.RawMessage(`{}`))
	if command != "" {
		t.Fatalf("expected no derivable command, got %q", command)
	}
	if string(params) != "{}" {
		t.Fatal("underivable params must pass through unchanged")
	}
}
