package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/MEKXH/cherub/internal/enforcement"
)

// BashParams parameters for the bash tool.
type BashParams struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
}

// BashTool executes shell commands under a timeout. Whether a command may
// run at all is the enforcement layer's call; this tool only carries it
// out, optionally confined to the workspace directory.
type BashTool struct {
	timeout             time.Duration
	restrictToWorkspace bool
	workspaceDir        string
}

// NewBashTool creates the bash tool.
func NewBashTool(timeoutSec int, restrictToWorkspace bool, workspaceDir string) *BashTool {
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	return &BashTool{
		timeout:             time.Duration(timeoutSec) * time.Second,
		restrictToWorkspace: restrictToWorkspace,
		workspaceDir:        workspaceDir,
	}
}

func (b *BashTool) Name() string {
	return "bash"
}

func (b *BashTool) Execute(ctx context.Context, action string, params json.RawMessage, token enforcement.Token) (string, error) {
	var input BashParams
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse bash params: %w", err)
	}
	if strings.TrimSpace(input.Command) == "" {
		return "", fmt.Errorf("bash: command is required")
	}

	workDir := input.WorkingDir
	if workDir != "" && !filepath.IsAbs(workDir) && b.workspaceDir != "" {
		workDir = filepath.Join(b.workspaceDir, workDir)
	}
	if b.restrictToWorkspace && b.workspaceDir != "" {
		if workDir != "" {
			if err := validatePath(workDir, b.workspaceDir); err != nil {
				return "", fmt.Errorf("working directory rejected: %w", err)
			}
		} else {
			workDir = b.workspaceDir
		}
	} else if workDir == "" && b.workspaceDir != "" {
		workDir = b.workspaceDir
	}

	slog.Debug("executing shell command", "action", action, "tier", token.Tier().String())

	timeoutCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(timeoutCtx, "cmd", "/C", input.Command)
	} else {
		cmd = exec.CommandContext(timeoutCtx, "sh", "-c", input.Command)
	}
	if workDir != "" {
		cmd.Dir = workDir
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return "", fmt.Errorf("bash: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return formatShellOutput(stdout.String(), stderr.String(), exitCode), nil
}

func formatShellOutput(stdout, stderr string, exitCode int) string {
	if exitCode == 0 && stderr == "" {
		return stdout
	}

	var sb strings.Builder
	sb.WriteString(stdout)
	if stderr != "" {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString("stderr: ")
		sb.WriteString(stderr)
	}
	if exitCode != 0 {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "exit code: %d", exitCode)
	}
	return sb.String()
}
