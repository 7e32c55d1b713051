package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MEKXH/cherub/internal/config"
	"github.com/MEKXH/cherub/internal/enforcement"
)

const defaultPolicyDoc = `# Cherub capability policy.
# Commands are matched top tier down: commit, then act, then observe.

[tools.bash]
enabled = true

[tools.bash.actions.read]
tier = "observe"
patterns = [
    "^ls ", "^ls$", "^cat ", "^find ", "^grep ", "^head ", "^tail ",
    "^wc ", "^file ", "^which ", "^echo ", "^pwd$", "^env$", "^whoami$",
]

[tools.bash.actions.write]
tier = "act"
patterns = ["^mkdir ", "^cp ", "^mv ", "^touch ", "^tee ", "^git "]

[tools.bash.actions.destructive]
tier = "commit"
patterns = [
    "^rm ", "^chmod ", "^chown ", "^kill ", "^pkill ",
    "^sudo ", "^apt ", "^pip install", "^go install",
]

[tools.files]
enabled = true

[tools.files.actions.read]
tier = "observe"
patterns = ["^read ", "^list "]

[tools.files.actions.write]
tier = "act"
patterns = ["^write ", "^append "]
`

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize Cherub configuration",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := config.ConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()

	dirs := []string{
		config.ConfigDir(),
		cfg.WorkspacePath(),
		filepath.Join(cfg.WorkspacePath(), "state"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	policyPath := cfg.PolicyPath()
	if _, err := os.Stat(policyPath); os.IsNotExist(err) {
		if _, err := enforcement.Parse(defaultPolicyDoc); err != nil {
			return fmt.Errorf("default policy failed to compile: %w", err)
		}
		if err := os.WriteFile(policyPath, []byte(defaultPolicyDoc), 0644); err != nil {
			return fmt.Errorf("failed to write default policy: %w", err)
		}
	}

	fmt.Printf("Cherub initialized!\n")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Policy: %s\n", policyPath)
	fmt.Printf("Workspace: %s\n", cfg.WorkspacePath())
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Edit %s to add your API keys\n", configPath)
	fmt.Printf("2. Review the capability policy in %s\n", policyPath)
	fmt.Printf("3. Run 'cherub run \"<prompt>\"' to start a gated run\n")

	return nil
}
