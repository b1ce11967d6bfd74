package telegram

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/C0nstantin/mailrelay/log"
	"github.com/C0nstantin/mailrelay/selection"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

type call struct {
	op     string
	userID int64
	arg    string
}

type fakeProtocol struct {
	mu      sync.Mutex
	calls   []call
	ctxErrs []error
	reply   selection.Reply
	panic   bool
	gate    chan struct{}
}

func (f *fakeProtocol) record(ctx context.Context, op string, userID int64, arg string) selection.Reply {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	f.calls = append(f.calls, call{op, userID, arg})
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.reply.Text == "" {
		return selection.Reply{Text: op}
	}
	return f.reply
}

func (f *fakeProtocol) Start(ctx context.Context, id int64) selection.Reply {
	return f.record(ctx, "start", id, "")
}

func (f *fakeProtocol) Help(ctx context.Context, id int64) selection.Reply {
	return f.record(ctx, "help", id, "")
}

func (f *fakeProtocol) Find(ctx context.Context, id int64, s string) selection.Reply {
	return f.record(ctx, "find", id, s)
}

func (f *fakeProtocol) Select(ctx context.Context, id int64, i int) selection.Reply {
	return f.record(ctx, "select", id, fmt.Sprint(i))
}

func (f *fakeProtocol) Message(ctx context.Context, id int64, body string) selection.Reply {
	return f.record(ctx, "message", id, body)
}

func (f *fakeProtocol) Cancel(ctx context.Context, id int64) selection.Reply {
	return f.record(ctx, "cancel", id, "")
}

func (f *fakeProtocol) byUser(id int64) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.userID == id {
			out = append(out, c)
		}
	}
	return out
}

type fakeNotifier struct{ errs []error }

func (f *fakeNotifier) Notify(err error) { f.errs = append(f.errs, err) }

func command(userID int64, text string, length int) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}}
}

func plain(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}}
}

func callback(userID int64, data string, messageID int) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Data:    data,
		Message: &tgbotapi.Message{MessageID: messageID, Chat: &tgbotapi.Chat{ID: userID}},
	}}
}

func newTestBot(p Protocol) (*Bot, *fakeAPI) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	return newBot(api, Config{Workers: 3}, p, log.NewNopLogger()), api
}

func TestHandleRoutesCommands(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		upd  tgbotapi.Update
		want call
	}{
		{"start", command(7, "/start", 6), call{"start", 7, ""}},
		{"help", command(7, "/help", 5), call{"help", 7, ""}},
		{"unknown command", command(7, "/foo", 4), call{"help", 7, ""}},
		{"find", command(7, "/find Smith", 5), call{"find", 7, "Smith"}},
		{"find without argument", command(7, "/find", 5), call{"find", 7, ""}},
		{"cancel", command(7, "/cancel", 7), call{"cancel", 7, ""}},
		{"text", plain(7, "Hello"), call{"message", 7, "Hello"}},
		{"non-text", plain(7, ""), call{"message", 7, ""}},
		{"button", callback(7, "select_3", 42), call{"select", 7, "3"}},
		{"bad payload", callback(7, "garbage", 42), call{"select", 7, "-1"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := &fakeProtocol{}
			b, api := newTestBot(p)
			b.handle(ctx, c.upd)
			assert.Equal(t, []call{c.want}, p.calls)
			assert.Len(t, api.sent, 1)
		})
	}
}

func TestCallbackIsAnswered(t *testing.T) {
	b, api := newTestBot(&fakeProtocol{})
	b.handle(context.Background(), callback(7, "select_0", 42))
	require.Len(t, api.requests, 1)
	assert.Equal(t, "cb", api.requests[0].(tgbotapi.CallbackConfig).CallbackQueryID)
}

func TestRenderEditsPressedMessage(t *testing.T) {
	p := &fakeProtocol{reply: selection.Reply{Text: "Sender: x", Edit: true}}
	b, api := newTestBot(p)
	b.handle(context.Background(), callback(7, "select_0", 42))

	require.Len(t, api.sent, 1)
	edit, ok := api.sent[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 42, edit.MessageID)
	assert.Equal(t, int64(7), edit.ChatID)
	assert.Equal(t, "Sender: x", edit.Text)
}

func TestRenderKeyboard(t *testing.T) {
	p := &fakeProtocol{reply: selection.Reply{Text: "Found 2", Buttons: []selection.Button{
		{Label: "John Smith (john@example.com)", Payload: "select_0"},
		{Label: "Jane Smith (jane@example.com)", Payload: "select_1"},
	}}}
	b, api := newTestBot(p)
	b.handle(context.Background(), command(7, "/find Smith", 5))

	require.Len(t, api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "Jane Smith (jane@example.com)", markup.InlineKeyboard[1][0].Text)
	require.NotNil(t, markup.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "select_1", *markup.InlineKeyboard[1][0].CallbackData)
}

func TestHandleRecoversPanic(t *testing.T) {
	n := &fakeNotifier{}
	b, api := newTestBot(&fakeProtocol{panic: true})
	b.SetNotifier(n)

	assert.NotPanics(t, func() { b.handle(context.Background(), plain(7, "Hello")) })
	assert.Empty(t, api.sent)
	require.Len(t, n.errs, 1)
	assert.Contains(t, n.errs[0].Error(), "boom")
}

func TestRunKeepsPerUserOrder(t *testing.T) {
	p := &fakeProtocol{}
	b, api := newTestBot(p)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	for i := 0; i < 30; i++ {
		for _, user := range []int64{1, 2, 3, 4} {
			api.updates <- plain(user, fmt.Sprint(i))
		}
	}
	api.updates <- tgbotapi.Update{UpdateID: 99}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	for _, user := range []int64{1, 2, 3, 4} {
		calls := p.byUser(user)
		require.Len(t, calls, 30)
		for i, c := range calls {
			assert.Equal(t, fmt.Sprint(i), c.arg)
		}
	}
	assert.True(t, api.stopped)
}

func TestRunDrainsQueueAfterCancel(t *testing.T) {
	p := &fakeProtocol{gate: make(chan struct{})}
	b, api := newTestBot(p)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	api.updates <- plain(1, "first")
	api.updates <- plain(1, "queued")
	// received only after "queued" has been dispatched
	api.updates <- tgbotapi.Update{UpdateID: 99}
	cancel()
	close(p.gate)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	require.Equal(t, []call{{"message", 1, "first"}, {"message", 1, "queued"}}, p.byUser(1))
	for _, err := range p.ctxErrs {
		assert.NoError(t, err)
	}
	assert.Len(t, api.sent, 2)
}

func TestShardIsStable(t *testing.T) {
	p := newWorkerPool(4, 1, func(context.Context, tgbotapi.Update) {})
	assert.Equal(t, p.shard(5), p.shard(5))
	assert.Equal(t, 1, p.shard(5))
	assert.GreaterOrEqual(t, p.shard(-5), 0)
	assert.Less(t, p.shard(-5), 4)
}
