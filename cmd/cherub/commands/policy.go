package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MEKXH/cherub/internal/config"
	"github.com/MEKXH/cherub/internal/enforcement"
)

func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the capability policy",
	}

	cmd.PersistentFlags().String("file", "", "Policy file path (defaults to the configured one)")

	cmd.AddCommand(
		newPolicyValidateCmd(),
		newPolicyShowCmd(),
		newPolicyCheckCmd(),
	)

	return cmd
}

func newPolicyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse and compile the policy, reporting errors",
		RunE:  runPolicyValidate,
	}
}

func newPolicyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show compiled tools and their tiers",
		RunE:  runPolicyShow,
	}
}

func newPolicyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <tool> <command>",
		Short: "Show how the policy would classify a command",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runPolicyCheck,
	}
}

func loadPolicyForCmd(cmd *cobra.Command) (*enforcement.Policy, string, error) {
	path, _ := cmd.Flags().GetString("file")
	path = strings.TrimSpace(path)
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		path = cfg.PolicyPath()
	}
	policy, err := enforcement.Load(path)
	if err != nil {
		return nil, path, err
	}
	return policy, path, nil
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	policy, path, err := loadPolicyForCmd(cmd)
	if err != nil {
		return err
	}
	fmt.Printf("Policy OK: %s (%d tools)\n", path, len(policy.ToolNames()))
	return nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	policy, path, err := loadPolicyForCmd(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("Policy: %s\n\n", path)
	for _, name := range policy.ToolNames() {
		tool, _ := policy.FindTool(name)
		status := "enabled"
		if !tool.Enabled() {
			status = "disabled"
		}
		tiers := make([]string, 0, len(tool.Tiers()))
		for _, tier := range tool.Tiers() {
			tiers = append(tiers, tier.String())
		}
		fmt.Printf("  %-12s %-9s tiers: %s\n", name, status, strings.Join(tiers, ", "))
	}
	return nil
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	policy, _, err := loadPolicyForCmd(cmd)
	if err != nil {
		return err
	}

	toolName := args[0]
	command := strings.Join(args[1:], " ")

	tool, ok := policy.FindTool(toolName)
	if !ok {
		fmt.Printf("reject: tool %q is not in the policy\n", toolName)
		return nil
	}
	if !tool.Enabled() {
		fmt.Printf("reject: tool %q is disabled\n", toolName)
		return nil
	}

	tier, ok := tool.MatchTier(command)
	if !ok {
		fmt.Println("reject: command matches no declared tier")
		return nil
	}
	if tier == enforcement.TierCommit {
		fmt.Printf("escalate: %s tier requires approval\n", tier)
		return nil
	}
	fmt.Printf("allow: %s tier\n", tier)
	return nil
}
