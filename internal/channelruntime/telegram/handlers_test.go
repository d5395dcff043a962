package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchen327/telegram-chatbot/internal/allowlist"
	"github.com/dchen327/telegram-chatbot/internal/conversation"
	"github.com/dchen327/telegram-chatbot/internal/relay"
	"github.com/dchen327/telegram-chatbot/internal/telegramutil"
	"github.com/dchen327/telegram-chatbot/internal/texts"
	"github.com/dchen327/telegram-chatbot/llm"
)

type sentMessage struct {
	ChatID int64
	Text   string
	HTML   bool
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	actions  int
	htmlErr  error
	plainErr error
}

func (m *fakeMessenger) SendHTML(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.htmlErr != nil {
		return m.htmlErr
	}
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, HTML: true})
	return nil
}

func (m *fakeMessenger) SendPlain(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.plainErr != nil {
		return m.plainErr
	}
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *fakeMessenger) SendChatAction(context.Context, int64, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions++
	return nil
}

func (m *fakeMessenger) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type fakeModel struct {
	mu         sync.Mutex
	created    int
	requests   []llm.Request
	text       string
	respondErr error
}

func (f *fakeModel) CreateConversation(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return "conv_test", nil
}

func (f *fakeModel) Respond(_ context.Context, req llm.Request) (llm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.respondErr != nil {
		return llm.Result{}, f.respondErr
	}
	return llm.Result{Text: f.text}, nil
}

func (f *fakeModel) snapshot() (int, []llm.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, append([]llm.Request(nil), f.requests...)
}

type botFixture struct {
	bot   *Bot
	api   *fakeMessenger
	model *fakeModel
	store conversation.Store
}

func newBotFixture(t *testing.T, gate allowlist.Gate) *botFixture {
	t.Helper()
	model := &fakeModel{text: "**Hi** there, see https://example.com"}
	store, err := conversation.NewMemory(model, 10, conversation.Options{SystemInstruction: "be brief"})
	require.NoError(t, err)
	r, err := relay.New(model, store, relay.Options{SearchKeywords: relay.DefaultSearchKeywords}, nil)
	require.NoError(t, err)
	api := &fakeMessenger{}
	bot, err := NewBot(BotOptions{
		Relay:       r,
		Messenger:   api,
		Texts:       texts.Default(),
		Gate:        gate,
		BotUsername: "relay_bot",
	})
	require.NoError(t, err)
	return &botFixture{bot: bot, api: api, model: model, store: store}
}

func textUpdate(userID int64, text string) telegramUpdate {
	return telegramUpdate{
		UpdateID: 1,
		Message: &telegramMessage{
			MessageID: 10,
			Chat:      &telegramChat{ID: userID, Type: "private"},
			From:      &telegramUser{ID: userID},
			Text:      text,
		},
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text, cmd, args string
		forUs           bool
	}{
		{"hello", "", "", true},
		{"/start", "/start", "", true},
		{"/Search  rust 1.80 ", "/search", "rust 1.80", true},
		{"/search@relay_bot go news", "/search", "go news", true},
		{"/search@Relay_Bot go", "/search", "go", true},
		{"/search@other_bot go", "", "", false},
		{"/search\nmultiline query", "/search", "multiline query", true},
	}
	for _, tc := range cases {
		cmd, args, forUs := parseCommand(tc.text, "relay_bot")
		assert.Equal(t, tc.cmd, cmd, tc.text)
		assert.Equal(t, tc.args, args, tc.text)
		assert.Equal(t, tc.forUs, forUs, tc.text)
	}
}

func TestBotPlainMessageRelaysAndStripsLinks(t *testing.T) {
	f := newBotFixture(t, allowlist.New(0))
	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(42, "hello")))

	sent := f.api.messages()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].HTML)
	assert.Equal(t, int64(42), sent[0].ChatID)
	assert.Contains(t, sent[0].Text, "<b>Hi</b> there")
	assert.NotContains(t, sent[0].Text, "example.com")

	created, reqs := f.model.snapshot()
	assert.Equal(t, 1, created)
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello", reqs[0].Input)
	assert.False(t, reqs[0].WebSearch)
	assert.GreaterOrEqual(t, f.api.actions, 1)
}

func TestBotPlainMessageWithSearchKeywordEnablesWebSearch(t *testing.T) {
	f := newBotFixture(t, allowlist.New(0))
	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(42, "latest news on X")))

	_, reqs := f.model.snapshot()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].WebSearch)
	assert.Equal(t, "latest news on X", reqs[0].Input)
	sent := f.api.messages()
	require.Len(t, sent, 1)
	assert.NotContains(t, sent[0].Text, "example.com")
}

func TestBotRefusesUnauthorizedUser(t *testing.T) {
	f := newBotFixture(t, allowlist.New(7))
	for _, text := range []string{"hello", "/newchat", "/search go", "/start", "/id"} {
		require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(99, text)))
	}
	sent := f.api.messages()
	require.Len(t, sent, 5)
	for _, m := range sent {
		assert.Equal(t, texts.Default().Refusal, m.Text)
	}
	created, reqs := f.model.snapshot()
	assert.Zero(t, created)
	assert.Empty(t, reqs)
	_, ok, err := f.store.Peek(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBotAllowsConfiguredUser(t *testing.T) {
	f := newBotFixture(t, allowlist.New(7))
	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(7, "hello")))
	_, reqs := f.model.snapshot()
	assert.Len(t, reqs, 1)
}

func TestBotCommands(t *testing.T) {
	catalog := texts.Default()
	cases := []struct {
		name string
		text string
		want string
	}{
		{"start", "/start", catalog.Welcome},
		{"help", "/help", catalog.Welcome},
		{"search without query", "/search", catalog.SearchUsage},
		{"search blank query", "/search    ", catalog.SearchUsage},
		{"unknown", "/frobnicate", catalog.UnknownCommand},
		{"newchat empty", "/newchat", catalog.NewChatEmpty},
		{"id", "/id", "user id: 42\nchat id: 42"},
		{"non text", "", catalog.TextOnly},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newBotFixture(t, allowlist.New(0))
			require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(42, tc.text)))
			sent := f.api.messages()
			require.Len(t, sent, 1)
			assert.Equal(t, strings.TrimSpace(tc.want), sent[0].Text)
			_, reqs := f.model.snapshot()
			assert.Empty(t, reqs)
		})
	}
}

func TestBotNewChatClearsConversation(t *testing.T) {
	f := newBotFixture(t, allowlist.New(0))
	ctx := context.Background()
	require.NoError(t, f.bot.HandleUpdate(ctx, textUpdate(42, "hello")))
	require.NoError(t, f.bot.HandleUpdate(ctx, textUpdate(42, "/newchat")))

	sent := f.api.messages()
	assert.Equal(t, texts.Default().NewChatCleared, sent[len(sent)-1].Text)
	_, ok, err := f.store.Peek(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBotSearchEnablesWebSearch(t *testing.T) {
	f := newBotFixture(t, allowlist.New(0))
	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(42, "/search latest go release")))
	_, reqs := f.model.snapshot()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].WebSearch)
	assert.Contains(t, reqs[0].Input, "latest go release")
	assert.NotEqual(t, "latest go release", reqs[0].Input)
}

func TestBotUpstreamFailureSendsApology(t *testing.T) {
	f := newBotFixture(t, allowlist.New(0))
	f.model.respondErr = errors.New("upstream 500")
	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(42, "hello")))
	sent := f.api.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, texts.Default().Apology, sent[0].Text)
	assert.False(t, sent[0].HTML)
}

func TestBotFallsBackToPlainOnParseError(t *testing.T) {
	f := newBotFixture(t, allowlist.New(0))
	f.api.htmlErr = &RequestError{Method: "sendMessage", StatusCode: 400, Description: "Bad Request: can't parse entities: unexpected end tag"}
	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(42, "hello")))
	sent := f.api.messages()
	require.Len(t, sent, 1)
	assert.False(t, sent[0].HTML)
	assert.Equal(t, "Hi there, see", sent[0].Text)
}

func TestBotIgnoresForeignCommandsAndEmptyUpdates(t *testing.T) {
	f := newBotFixture(t, allowlist.New(0))
	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(42, "/start@other_bot")))
	require.NoError(t, f.bot.HandleUpdate(context.Background(), telegramUpdate{UpdateID: 3}))
	assert.Empty(t, f.api.messages())
}

func TestRequireAllowed(t *testing.T) {
	var refused, served int
	h := RequireAllowed(allowlist.New(5),
		HandlerFunc(func(context.Context, Event) error { refused++; return nil }),
		HandlerFunc(func(context.Context, Event) error { served++; return nil }),
	)
	require.NoError(t, h.Handle(context.Background(), Event{UserID: 5}))
	require.NoError(t, h.Handle(context.Background(), Event{UserID: 6}))
	assert.Equal(t, 1, served)
	assert.Equal(t, 1, refused)
}

func TestRequestErrorMatchesParseEntities(t *testing.T) {
	err := error(&RequestError{StatusCode: 400, Description: "Bad Request: can't parse entities: Unsupported start tag"})
	assert.True(t, errors.Is(err, telegramutil.ErrParseEntities))
	assert.True(t, IsParseError(err))
	assert.False(t, IsParseError(&RequestError{StatusCode: 403, Description: "Forbidden: bot was blocked by the user"}))
	assert.False(t, IsParseError(nil))
}
