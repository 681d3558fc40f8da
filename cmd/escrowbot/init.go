package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter config.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = args[0]
			}
			dir = filepath.Clean(dir)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			cfgPath := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}

			token, err := promptBotToken(cmd)
			if err != nil {
				return err
			}

			body, err := yaml.Marshal(starterConfig(token))
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, body, 0o600); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run: escrowbot serve --config %s\n", cfgPath)
			return nil
		},
	}
	return cmd
}

func starterConfig(token string) map[string]any {
	return map[string]any{
		"telegram": map[string]any{
			"bot_token":        token,
			"poll_timeout":     "30s",
			"max_concurrency":  3,
			"allowed_chat_ids": []string{},
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "text",
		},
	}
}

// promptBotToken reads the token with echo off when stdin is a terminal, so
// it does not land in shell history or scrollback. Non-interactive runs get
// an empty token to fill in later.
func promptBotToken(cmd *cobra.Command) (string, error) {
	stdin, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(stdin.Fd())) {
		return "", nil
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Telegram bot token (from @BotFather, leave empty to fill in later): ")
	raw, err := term.ReadPassword(int(stdin.Fd()))
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
