// Package botrun drives the bot: it long-polls Telegram for updates and
// dispatches each one to a per-chat worker that parses the command, calls
// the escrow service, and sends the rendered reply.
package botrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pagalhq/escrowbot/escrow"
	"github.com/pagalhq/escrowbot/internal/botapi"
	"github.com/pagalhq/escrowbot/internal/command"
	"github.com/pagalhq/escrowbot/internal/render"
	"github.com/pagalhq/escrowbot/internal/worker"
)

const (
	workerQueueSize = 16
	workerIdleTTL   = 10 * time.Minute
	pollRetryDelay  = 2 * time.Second
)

type Options struct {
	PollTimeout    time.Duration
	MaxConcurrency int
	AllowedChatIDs []int64
}

type Runtime struct {
	api    *botapi.Client
	svc    *escrow.Service
	dir    *escrow.Directory
	logger *slog.Logger

	pollTimeout time.Duration
	sem         chan struct{}
	allowed     map[int64]bool

	mu           sync.Mutex
	workers      map[int64]chan job
	lastActivity map[int64]time.Time
}

type job struct {
	update botapi.Update
	corrID string
}

func New(api *botapi.Client, svc *escrow.Service, dir *escrow.Directory, logger *slog.Logger, opts Options) (*Runtime, error) {
	if api == nil || svc == nil || dir == nil {
		return nil, fmt.Errorf("botrun: api, service, and directory are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	maxConc := opts.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 3
	}
	var allowed map[int64]bool
	if len(opts.AllowedChatIDs) > 0 {
		allowed = make(map[int64]bool, len(opts.AllowedChatIDs))
		for _, id := range opts.AllowedChatIDs {
			if id != 0 {
				allowed[id] = true
			}
		}
	}
	return &Runtime{
		api:          api,
		svc:          svc,
		dir:          dir,
		logger:       logger,
		pollTimeout:  pollTimeout,
		sem:          make(chan struct{}, maxConc),
		allowed:      allowed,
		workers:      make(map[int64]chan job),
		lastActivity: make(map[int64]time.Time),
	}, nil
}

// Run polls until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	me, err := r.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("botrun: getMe: %w", err)
	}
	r.logger.Info("bot_start",
		"bot_username", me.Username,
		"bot_id", me.ID,
		"poll_timeout", r.pollTimeout.String(),
		"max_concurrency", cap(r.sem),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.pollLoop(ctx) })
	g.Go(func() error { return r.reapIdleWorkers(ctx) })
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runtime) pollLoop(ctx context.Context) error {
	var offset int64
	for {
		updates, next, err := r.api.GetUpdates(ctx, offset, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isPollTimeout(err) {
				continue
			}
			r.logger.Warn("poll_error", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		offset = next
		for _, u := range updates {
			r.dispatch(ctx, u)
		}
	}
}

func (r *Runtime) dispatch(ctx context.Context, u botapi.Update) {
	chatID := chatIDOf(u)
	if chatID == 0 {
		return
	}
	if r.allowed != nil && !r.allowed[chatID] {
		r.logger.Debug("update_skipped", "chat_id", chatID, "reason", "chat not allowed")
		return
	}
	corrID := ""
	if id, err := uuid.NewV7(); err == nil {
		corrID = id.String()
	}

	r.mu.Lock()
	jobs, ok := r.workers[chatID]
	if !ok {
		jobs = make(chan job, workerQueueSize)
		r.workers[chatID] = jobs
		worker.Start(ctx, r.sem, jobs, r.handleJob)
	}
	r.lastActivity[chatID] = time.Now()
	select {
	case jobs <- job{update: u, corrID: corrID}:
	default:
		r.logger.Warn("update_dropped", "chat_id", chatID, "correlation_id", corrID, "reason", "worker queue full")
	}
	r.mu.Unlock()
}

func (r *Runtime) reapIdleWorkers(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-workerIdleTTL)
			r.mu.Lock()
			for chatID, last := range r.lastActivity {
				if last.Before(cutoff) {
					if jobs, ok := r.workers[chatID]; ok {
						close(jobs)
						delete(r.workers, chatID)
					}
					delete(r.lastActivity, chatID)
				}
			}
			r.mu.Unlock()
		}
	}
}

func (r *Runtime) handleJob(ctx context.Context, j job) {
	switch {
	case j.update.Message != nil:
		r.handleMessage(ctx, j.update.Message, j.corrID)
	case j.update.CallbackQuery != nil:
		r.handleCallback(ctx, j.update.CallbackQuery, j.corrID)
	}
}

func (r *Runtime) handleMessage(ctx context.Context, msg *botapi.Message, corrID string) {
	if msg.From == nil || msg.From.IsBot || msg.Chat == nil {
		return
	}
	actor := r.observe(msg.From)

	cmd, err := command.Parse(msg.Text)
	if err != nil {
		var invalid *command.InvalidInputError
		if errors.As(err, &invalid) && invalid.Usage != "" {
			r.reply(ctx, msg, invalid.Usage)
		}
		// Plain chatter and unknown commands are ignored.
		return
	}

	r.logger.Info("command_received",
		"correlation_id", corrID,
		"chat_id", msg.Chat.ID,
		"from_id", actor.ID,
		"command", string(cmd.Kind),
	)

	switch cmd.Kind {
	case command.KindStart:
		r.reply(ctx, msg, render.Welcome(msg.From.FirstName))

	case command.KindInitiate:
		e := r.svc.CreateEscrow(actor.ID, cmd.SellerHandle, cmd.Amount, cmd.Description)
		r.logger.Info("escrow_created", "correlation_id", corrID, "escrow_id", e.ID, "buyer_id", actor.ID, "seller", e.Seller.Handle)
		_, sendErr := r.api.SendMessage(ctx, botapi.SendParams{
			ChatID:           msg.Chat.ID,
			Text:             render.Initiated(e),
			ReplyToMessageID: msg.MessageID,
			ReplyMarkup:      initiationKeyboard(e.ID),
		})
		if sendErr != nil {
			r.logger.Warn("send_error", "correlation_id", corrID, "error", sendErr.Error())
		}

	case command.KindList:
		r.reply(ctx, msg, render.List(actor, r.svc.ListEscrows(actor)))

	case command.KindBuyerConfirm:
		e, err := r.svc.BuyerConfirmReceipt(cmd.EscrowID, actor)
		r.replyOutcome(ctx, msg, corrID, escrow.ActionBuyerConfirmReceipt, err, func() string { return render.ReceiptConfirmed(e) })

	case command.KindSellerRelease:
		e, err := r.svc.SellerRelease(cmd.EscrowID, actor)
		r.replyOutcome(ctx, msg, corrID, escrow.ActionSellerRelease, err, func() string { return render.Released(e) })

	case command.KindCancel:
		_, err := r.svc.Cancel(cmd.EscrowID, actor)
		r.replyOutcome(ctx, msg, corrID, escrow.ActionCancel, err, func() string { return render.Cancelled(cmd.EscrowID) })
	}
}

func (r *Runtime) handleCallback(ctx context.Context, cb *botapi.CallbackQuery, corrID string) {
	if cb.From == nil {
		return
	}
	actor := r.observe(cb.From)

	cmd, err := command.ParseCallback(cb.Data)
	if err != nil {
		_ = r.api.AnswerCallbackQuery(ctx, cb.ID, "Unknown action.")
		return
	}

	r.logger.Info("callback_received",
		"correlation_id", corrID,
		"from_id", actor.ID,
		"action", string(cmd.Kind),
		"escrow_id", cmd.EscrowID,
	)

	var text string
	switch cmd.Kind {
	case command.KindSellerConfirm:
		e, err := r.svc.SellerConfirm(cmd.EscrowID, actor)
		if err != nil {
			text = render.Rejection(escrow.ActionSellerConfirm, err)
		} else {
			text = render.SellerConfirmed(e)
		}
	case command.KindCancel:
		_, err := r.svc.Cancel(cmd.EscrowID, actor)
		if err != nil {
			text = render.Rejection(escrow.ActionCancel, err)
		} else {
			text = render.Cancelled(cmd.EscrowID)
		}
	default:
		text = "Unknown action."
	}

	if err := r.api.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		r.logger.Warn("callback_answer_error", "correlation_id", corrID, "error", err.Error())
	}
	if cb.Message != nil && cb.Message.Chat != nil {
		if err := r.api.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, text); err != nil {
			r.logger.Warn("edit_error", "correlation_id", corrID, "error", err.Error())
		}
	}
}

// observe feeds the user's handle-to-id binding into the directory and
// returns the actor identity for this update.
func (r *Runtime) observe(u *botapi.User) escrow.Actor {
	handle := escrow.NormalizeHandle(u.Username)
	if handle != "" {
		r.dir.Observe(handle, u.ID)
	}
	return escrow.Actor{ID: u.ID, Handle: handle}
}

func (r *Runtime) reply(ctx context.Context, msg *botapi.Message, text string) {
	_, err := r.api.SendMessage(ctx, botapi.SendParams{
		ChatID:           msg.Chat.ID,
		Text:             text,
		ReplyToMessageID: msg.MessageID,
	})
	if err != nil {
		r.logger.Warn("send_error", "error", err.Error())
	}
}

func (r *Runtime) replyOutcome(ctx context.Context, msg *botapi.Message, corrID string, action escrow.Action, err error, success func() string) {
	if err != nil {
		r.logger.Info("transition_rejected", "correlation_id", corrID, "action", string(action), "reason", err.Error())
		r.reply(ctx, msg, render.Rejection(action, err))
		return
	}
	r.reply(ctx, msg, success())
}

func initiationKeyboard(escrowID int64) *botapi.InlineKeyboardMarkup {
	return &botapi.InlineKeyboardMarkup{InlineKeyboard: [][]botapi.InlineKeyboardButton{
		{{Text: "I am the Seller", CallbackData: command.SellerConfirmCallback(escrowID)}},
		{{Text: "Cancel", CallbackData: command.CancelCallback(escrowID)}},
	}}
}

func chatIDOf(u botapi.Update) int64 {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil:
		return u.CallbackQuery.Message.Chat.ID
	default:
		return 0
	}
}

func isPollTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}
