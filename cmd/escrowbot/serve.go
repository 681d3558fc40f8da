package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagalhq/escrowbot/escrow"
	"github.com/pagalhq/escrowbot/internal/botapi"
	"github.com/pagalhq/escrowbot/internal/botrun"
	"github.com/pagalhq/escrowbot/internal/logutil"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the escrow bot against the Telegram Bot API",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(flagOrViperString(cmd, "bot-token", "telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --bot-token or ESCROWBOT_TELEGRAM_BOT_TOKEN)")
			}

			var allowed []int64
			for _, s := range flagOrViperStringArray(cmd, "allowed-chat-id", "telegram.allowed_chat_ids") {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				id, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid telegram.allowed_chat_ids entry %q: %w", s, err)
				}
				allowed = append(allowed, id)
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			httpClient := &http.Client{Timeout: 60 * time.Second}
			api := botapi.NewClient(httpClient, botapi.DefaultBaseURL, token)

			store := escrow.NewStore()
			dir := escrow.NewDirectory()
			svc := escrow.NewService(store, dir)

			rt, err := botrun.New(api, svc, dir, logger, botrun.Options{
				PollTimeout:    flagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout"),
				MaxConcurrency: flagOrViperInt(cmd, "max-concurrency", "telegram.max_concurrency"),
				AllowedChatIDs: allowed,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return rt.Run(ctx)
		},
	}

	cmd.Flags().String("bot-token", "", "Telegram bot token.")
	cmd.Flags().Duration("poll-timeout", 30*time.Second, "Long-poll timeout for getUpdates.")
	cmd.Flags().Int("max-concurrency", 3, "Max concurrently handled updates across chats.")
	cmd.Flags().StringArray("allowed-chat-id", nil, "Restrict handling to these chat ids (repeatable).")

	return cmd
}
