package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MEKXH/cherub/internal/enforcement"
)

// validatePath checks that the given path is within the workspace boundary.
// If workspacePath is empty, validation is skipped.
func validatePath(path, workspacePath string) error {
	if workspacePath == "" {
		return nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absPath = filepath.Clean(absPath)
	cleanWorkspace := filepath.Clean(workspacePath)

	if !strings.HasPrefix(absPath, cleanWorkspace+string(filepath.Separator)) && absPath != cleanWorkspace {
		return fmt.Errorf("access denied: path %q is outside workspace %q", absPath, cleanWorkspace)
	}
	return nil
}

// FileParams parameters for the files tool. Command is the canonical
// "<action> <path>" form synthesized by the invocation producer so file
// operations go through the same pattern matcher as shell commands.
type FileParams struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Command string `json:"command,omitempty"`
}

// FilesTool reads, writes, appends, and lists files inside the workspace.
type FilesTool struct {
	workspaceDir string
}

// NewFilesTool creates the files tool rooted at the workspace.
func NewFilesTool(workspaceDir string) *FilesTool {
	return &FilesTool{workspaceDir: workspaceDir}
}

func (f *FilesTool) Name() string {
	return "files"
}

// resolvePath anchors a relative path at the workspace root, then checks
// the result stays inside it. Paths arrive workspace-relative from the
// model; resolving against the process CWD would break them.
func (f *FilesTool) resolvePath(path string) (string, error) {
	if !filepath.IsAbs(path) && f.workspaceDir != "" {
		path = filepath.Join(f.workspaceDir, path)
	}
	if err := validatePath(path, f.workspaceDir); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

func (f *FilesTool) Execute(ctx context.Context, action string, params json.RawMessage, _ enforcement.Token) (string, error) {
	var input FileParams
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("parse file params: %w", err)
	}
	if strings.TrimSpace(input.Path) == "" {
		return "", fmt.Errorf("files: path is required")
	}
	resolved, err := f.resolvePath(input.Path)
	if err != nil {
		return "", err
	}
	input.Path = resolved

	switch action {
	case "read":
		data, err := os.ReadFile(input.Path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case "write":
		if err := os.MkdirAll(filepath.Dir(input.Path), 0755); err != nil {
			return "", err
		}
		if err := os.WriteFile(input.Path, []byte(input.Content), 0644); err != nil {
			return "", err
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(input.Content), input.Path), nil
	case "append":
		if err := os.MkdirAll(filepath.Dir(input.Path), 0755); err != nil {
			return "", err
		}
		file, err := os.OpenFile(input.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return "", err
		}
		defer file.Close()
		if _, err := file.WriteString(input.Content); err != nil {
			return "", err
		}
		return fmt.Sprintf("appended %d bytes to %s", len(input.Content), input.Path), nil
	case "list":
		entries, err := os.ReadDir(input.Path)
		if err != nil {
			return "", err
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return strings.Join(names, "\n"), nil
	default:
		return "", fmt.Errorf("files: unsupported action %q", action)
	}
}

// CanonicalCommand returns the policy-matchable command string for a tool
// call. Bash calls carry their own; file operations get the synthesized
// "<action> <path>" form. Reports false when no command can be derived,
// which the enforcement layer treats as Reject.
func CanonicalCommand(tool, action string, params json.RawMessage) (string, bool) {
	var bag map[string]any
	if err := json.Unmarshal(params, &bag); err != nil {
		return "", false
	}
	if command, ok := bag["command"].(string); ok && command != "" {
		return command, true
	}
	if tool == "files" {
		path, ok := bag["path"].(string)
		if !ok || path == "" || action == "" {
			return "", false
		}
		return action + " " + path, true
	}
	return "", false
}
