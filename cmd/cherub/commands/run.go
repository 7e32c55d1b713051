package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/MEKXH/cherub/internal/agent"
	"github.com/MEKXH/cherub/internal/config"
	"github.com/MEKXH/cherub/internal/enforcement"
	"github.com/MEKXH/cherub/internal/provider"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run one prompt through the gated agent loop",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPrompt,
	}
	cmd.Flags().Bool("plain", false, "Print raw output without markdown rendering")
	return cmd
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// A missing or invalid policy means nothing runs.
	policy, err := enforcement.Load(cfg.PolicyPath())
	if err != nil {
		return fmt.Errorf("failed to load policy from %s: %w", cfg.PolicyPath(), err)
	}

	model, err := provider.NewChatModel(ctx, cfg)
	if err != nil {
		return err
	}

	loop, err := agent.NewLoop(cfg, model, policy)
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	prompt := strings.Join(args, " ")
	slog.Info("starting gated run", "policy", cfg.PolicyPath())

	result, err := loop.Process(ctx, prompt)
	if err != nil {
		return err
	}

	plain, _ := cmd.Flags().GetBool("plain")
	fmt.Println(renderOutput(result, plain))
	return nil
}

func renderOutput(content string, plain bool) string {
	if plain {
		return content
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}
