package botrun

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/pagalhq/escrowbot/escrow"
	"github.com/pagalhq/escrowbot/internal/botapi"
	"github.com/pagalhq/escrowbot/internal/command"
)

type apiCall struct {
	Method string
	Body   map[string]any
}

type fakeTelegram struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeTelegram) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := map[string]any{}
		_ = json.Unmarshal(raw, &body)

		f.mu.Lock()
		f.calls = append(f.calls, apiCall{Method: path.Base(r.URL.Path), Body: body})
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch path.Base(r.URL.Path) {
		case "sendMessage":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	})
}

func (f *fakeTelegram) callsFor(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestRuntime(t *testing.T) (*Runtime, *fakeTelegram) {
	t.Helper()
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	api := botapi.NewClient(srv.Client(), srv.URL, "TOKEN")
	store := escrow.NewStore()
	dir := escrow.NewDirectory()
	svc := escrow.NewService(store, dir)
	rt, err := New(api, svc, dir, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return rt, fake
}

func messageFrom(userID int64, username, text string) *botapi.Message {
	return &botapi.Message{
		MessageID: 100,
		Chat:      &botapi.Chat{ID: 10, Type: "group"},
		From:      &botapi.User{ID: userID, Username: username, FirstName: "U"},
		Text:      text,
	}
}

func TestHandleMessage_InitiateSendsKeyboard(t *testing.T) {
	rt, fake := newTestRuntime(t)
	ctx := context.Background()

	rt.handleMessage(ctx, messageFrom(101, "alice", "/initiate 100 USD for laptop @bob"), "c1")

	sends := fake.callsFor("sendMessage")
	if len(sends) != 1 {
		t.Fatalf("got %d sendMessage calls, want 1", len(sends))
	}
	text := sends[0].Body["text"].(string)
	if !strings.Contains(text, "Escrow initiated!") || !strings.Contains(text, "ID: 1") {
		t.Fatalf("reply = %q", text)
	}
	markup, ok := sends[0].Body["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("missing reply_markup in %+v", sends[0].Body)
	}
	rows := markup["inline_keyboard"].([]any)
	if len(rows) != 2 {
		t.Fatalf("keyboard rows = %d, want 2", len(rows))
	}

	// The escrow is actually in the store, pending.
	e, err := rt.svc.Get(1)
	if err != nil || e.Status != escrow.StatusPending {
		t.Fatalf("Get(1) = %+v, %v", e, err)
	}
}

func TestHandleMessage_InvalidInputRepliesUsageWithoutLookup(t *testing.T) {
	rt, fake := newTestRuntime(t)
	rt.handleMessage(context.Background(), messageFrom(101, "alice", "/confirm abc"), "c1")

	sends := fake.callsFor("sendMessage")
	if len(sends) != 1 {
		t.Fatalf("got %d sendMessage calls, want 1", len(sends))
	}
	if !strings.Contains(sends[0].Body["text"].(string), "Usage: /confirm") {
		t.Fatalf("reply = %q", sends[0].Body["text"])
	}
}

func TestHandleMessage_PlainTextIgnored(t *testing.T) {
	rt, fake := newTestRuntime(t)
	rt.handleMessage(context.Background(), messageFrom(101, "alice", "hello bot"), "c1")
	if calls := fake.callsFor("sendMessage"); len(calls) != 0 {
		t.Fatalf("expected no replies, got %d", len(calls))
	}
}

func TestHandleCallback_SellerConfirmEditsMessage(t *testing.T) {
	rt, fake := newTestRuntime(t)
	ctx := context.Background()

	rt.handleMessage(ctx, messageFrom(101, "alice", "/initiate 50 widget @bob"), "c1")

	cb := &botapi.CallbackQuery{
		ID:      "cb1",
		From:    &botapi.User{ID: 202, Username: "bob"},
		Message: &botapi.Message{MessageID: 1, Chat: &botapi.Chat{ID: 10}},
		Data:    command.SellerConfirmCallback(1),
	}
	rt.handleCallback(ctx, cb, "c2")

	if answers := fake.callsFor("answerCallbackQuery"); len(answers) != 1 {
		t.Fatalf("got %d answerCallbackQuery calls, want 1", len(answers))
	}
	edits := fake.callsFor("editMessageText")
	if len(edits) != 1 {
		t.Fatalf("got %d editMessageText calls, want 1", len(edits))
	}
	if !strings.Contains(edits[0].Body["text"].(string), "confirmed by seller") {
		t.Fatalf("edit text = %q", edits[0].Body["text"])
	}

	e, err := rt.svc.Get(1)
	if err != nil || e.Status != escrow.StatusOpen {
		t.Fatalf("escrow after seller confirm = %+v, %v, want open", e, err)
	}
}

func TestHandleCallback_WrongSellerRejected(t *testing.T) {
	rt, fake := newTestRuntime(t)
	ctx := context.Background()

	rt.handleMessage(ctx, messageFrom(101, "alice", "/initiate 50 widget @carol"), "c1")

	cb := &botapi.CallbackQuery{
		ID:      "cb1",
		From:    &botapi.User{ID: 666, Username: "mallory"},
		Message: &botapi.Message{MessageID: 1, Chat: &botapi.Chat{ID: 10}},
		Data:    command.SellerConfirmCallback(1),
	}
	rt.handleCallback(ctx, cb, "c2")

	edits := fake.callsFor("editMessageText")
	if len(edits) != 1 || edits[0].Body["text"].(string) != "You are not the seller." {
		t.Fatalf("edits = %+v", edits)
	}
	e, err := rt.svc.Get(1)
	if err != nil || e.Status != escrow.StatusPending {
		t.Fatalf("escrow = %+v, %v, want still pending", e, err)
	}
}

func TestHandleMessage_FullFlowOverCommands(t *testing.T) {
	rt, fake := newTestRuntime(t)
	ctx := context.Background()

	rt.handleMessage(ctx, messageFrom(101, "alice", "/initiate 50 widget @bob"), "c1")
	rt.handleCallback(ctx, &botapi.CallbackQuery{
		ID:      "cb1",
		From:    &botapi.User{ID: 202, Username: "bob"},
		Message: &botapi.Message{MessageID: 1, Chat: &botapi.Chat{ID: 10}},
		Data:    command.SellerConfirmCallback(1),
	}, "c2")
	rt.handleMessage(ctx, messageFrom(101, "alice", "/confirm 1"), "c3")
	rt.handleMessage(ctx, messageFrom(202, "bob", "/release 1"), "c4")

	e, err := rt.svc.Get(1)
	if err != nil || e.Status != escrow.StatusCompleted {
		t.Fatalf("escrow = %+v, %v, want completed", e, err)
	}

	// Second release reports the terminal state.
	rt.handleMessage(ctx, messageFrom(202, "bob", "/release 1"), "c5")
	sends := fake.callsFor("sendMessage")
	last := sends[len(sends)-1].Body["text"].(string)
	if last != "Escrow already completed." {
		t.Fatalf("second release reply = %q", last)
	}
}

func TestHandleMessage_ListShowsBothRoles(t *testing.T) {
	rt, fake := newTestRuntime(t)
	ctx := context.Background()

	rt.handleMessage(ctx, messageFrom(101, "alice", "/initiate 50 widget @bob"), "c1")
	rt.handleMessage(ctx, messageFrom(303, "carol", "/initiate 20 gadget @alice"), "c2")
	rt.handleMessage(ctx, messageFrom(101, "alice", "/list"), "c3")

	sends := fake.callsFor("sendMessage")
	last := sends[len(sends)-1].Body["text"].(string)
	if !strings.Contains(last, "ID: 1 | Role: Buyer") || !strings.Contains(last, "ID: 2 | Role: Seller") {
		t.Fatalf("list reply = %q", last)
	}
}

func TestObserve_FeedsDirectory(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.handleMessage(context.Background(), messageFrom(202, "bob", "/start"), "c1")

	id, ok := rt.dir.Lookup("@bob")
	if !ok || id != 202 {
		t.Fatalf("Lookup(@bob) = %d, %v, want 202 bound", id, ok)
	}
}

func TestDispatch_AllowedChatFilter(t *testing.T) {
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	api := botapi.NewClient(srv.Client(), srv.URL, "TOKEN")
	dir := escrow.NewDirectory()
	svc := escrow.NewService(escrow.NewStore(), dir)
	rt, err := New(api, svc, dir, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		AllowedChatIDs: []int64{99},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.dispatch(ctx, botapi.Update{Message: messageFrom(101, "alice", "/start")})

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.workers) != 0 {
		t.Fatalf("worker started for disallowed chat")
	}
}
