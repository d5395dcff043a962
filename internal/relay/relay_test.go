package relay

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchen327/telegram-chatbot/internal/conversation"
	"github.com/dchen327/telegram-chatbot/internal/outputfmt"
	"github.com/dchen327/telegram-chatbot/llm"
)

var urlRE = regexp.MustCompile(`(?i)https?://|\bwww\.`)

type fakeLLM struct {
	mu            sync.Mutex
	instructions  []string
	requests      []llm.Request
	convs         int
	text          string
	respondErr    error
	createErr     error
	blockUntilCtx bool
}

func (f *fakeLLM) CreateConversation(_ context.Context, systemInstruction string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.convs++
	f.instructions = append(f.instructions, systemInstruction)
	return "conv_" + string(rune('0'+f.convs)), nil
}

func (f *fakeLLM) Respond(ctx context.Context, req llm.Request) (llm.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	text, err, block := f.text, f.respondErr, f.blockUntilCtx
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return llm.Result{}, ctx.Err()
	}
	if err != nil {
		return llm.Result{}, err
	}
	return llm.Result{Text: text, ResponseID: "resp_1", Usage: llm.Usage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7}}, nil
}

func (f *fakeLLM) lastRequest(t *testing.T) llm.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newTestRelay(t *testing.T, f *fakeLLM, opts Options) (*Relay, conversation.Store) {
	t.Helper()
	store, err := conversation.NewMemory(f, 100, conversation.Options{SystemInstruction: "be concise"})
	require.NoError(t, err)
	r, err := New(f, store, opts, nil)
	require.NoError(t, err)
	return r, store
}

func TestNew_Validation(t *testing.T) {
	f := &fakeLLM{}
	store, err := conversation.NewMemory(f, 10, conversation.Options{})
	require.NoError(t, err)

	_, err = New(nil, store, Options{}, nil)
	require.Error(t, err)
	_, err = New(f, nil, Options{}, nil)
	require.Error(t, err)
	_, err = New(f, store, Options{ReasoningEffort: "extreme"}, nil)
	require.Error(t, err)

	r, err := New(f, store, Options{}, nil)
	require.NoError(t, err)
	o := r.Options()
	assert.Equal(t, DefaultModel, o.Model)
	assert.Equal(t, DefaultMaxOutputTokens, o.MaxOutputTokens)
	assert.Equal(t, DefaultReasoningEffort, o.ReasoningEffort)
	assert.Equal(t, outputfmt.TelegramMessageLimit, o.ChunkLimit)
	assert.Equal(t, DefaultEmptyNotice, o.EmptyNotice)
}

func TestRespond_Hello(t *testing.T) {
	f := &fakeLLM{text: "Hi **there**! How can I help?"}
	r, _ := newTestRelay(t, f, Options{})

	reply, err := r.Respond(context.Background(), 1, "hello", false)
	require.NoError(t, err)

	req := f.lastRequest(t)
	assert.Equal(t, "hello", req.Input)
	assert.False(t, req.WebSearch)
	assert.Equal(t, "conv_1", req.ConversationID)
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, 4000, req.MaxOutputTokens)
	assert.Equal(t, "low", req.ReasoningEffort)

	assert.Equal(t, []string{"Hi <b>there</b>! How can I help?"}, reply.Chunks)
	assert.True(t, reply.NewConversation)
	assert.False(t, reply.Empty)
	assert.Equal(t, "conv_1", reply.ConversationID)
	assert.Equal(t, 7, reply.Usage.TotalTokens)
	assert.Equal(t, []string{"be concise"}, f.instructions)
}

func TestRespond_ReusesConversation(t *testing.T) {
	f := &fakeLLM{text: "ok"}
	r, _ := newTestRelay(t, f, Options{Model: "gpt-4o-mini"})
	ctx := context.Background()

	_, err := r.Respond(ctx, 1, "one", false)
	require.NoError(t, err)
	reply, err := r.Respond(ctx, 1, "two", false)
	require.NoError(t, err)

	assert.False(t, reply.NewConversation)
	assert.Equal(t, 1, f.convs, "system instruction is sent only on creation")
	assert.Equal(t, "gpt-4o-mini", f.lastRequest(t).Model)
}

func TestRespond_SearchKeywords(t *testing.T) {
	tests := []struct {
		name       string
		keywords   []string
		text       string
		wantSearch bool
	}{
		{name: "hello has no keyword", keywords: DefaultSearchKeywords, text: "hello", wantSearch: false},
		{name: "latest news", keywords: DefaultSearchKeywords, text: "latest news on the Mars rover", wantSearch: true},
		{name: "case insensitive phrase", keywords: DefaultSearchKeywords, text: "Can you LOOK UP the score?", wantSearch: true},
		{name: "detection disabled", keywords: nil, text: "latest news on X", wantSearch: false},
		{name: "custom list", keywords: []string{" Weather "}, text: "weather tomorrow?", wantSearch: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeLLM{text: "ok"}
			r, _ := newTestRelay(t, f, Options{SearchKeywords: tc.keywords})

			_, err := r.Respond(context.Background(), 1, tc.text, false)
			require.NoError(t, err)

			req := f.lastRequest(t)
			assert.Equal(t, tc.wantSearch, req.WebSearch)
			assert.Equal(t, tc.text, req.Input, "keyword search sends the text as written")
		})
	}
}

func TestRespond_SearchStripsURLs(t *testing.T) {
	f := &fakeLLM{text: "**NYC:** sunny, 21°C. Source: https://weather.example.com/nyc\n\nMore at [Weather.com](https://weather.com) or www.nws.gov."}
	r, _ := newTestRelay(t, f, Options{})

	reply, err := r.Respond(context.Background(), 1, "weather in NYC", true)
	require.NoError(t, err)

	req := f.lastRequest(t)
	assert.True(t, req.WebSearch)
	assert.Contains(t, req.Input, "weather in NYC")
	assert.Contains(t, req.Input, "Do not ask clarifying questions")
	assert.Contains(t, req.Input, "Do not include links")

	require.Len(t, reply.Chunks, 1)
	assert.False(t, urlRE.MatchString(reply.Chunks[0]), reply.Chunks[0])
	assert.Contains(t, reply.Chunks[0], "<b>NYC:</b> sunny")
	assert.Contains(t, reply.Chunks[0], "More at Weather.com or")
}

func TestRespond_NewChatStartsFreshConversation(t *testing.T) {
	f := &fakeLLM{text: "ok"}
	r, store := newTestRelay(t, f, Options{})
	ctx := context.Background()

	_, err := r.Respond(ctx, 1, "hello", false)
	require.NoError(t, err)

	cleared, err := r.NewChat(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cleared)
	_, found, err := store.Peek(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	reply, err := r.Respond(ctx, 1, "again", false)
	require.NoError(t, err)
	assert.True(t, reply.NewConversation)
	assert.Equal(t, "conv_2", reply.ConversationID)
	assert.Equal(t, []string{"be concise", "be concise"}, f.instructions)

	cleared, err = r.NewChat(ctx, 99)
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestRespond_EmptyOutput(t *testing.T) {
	for _, text := range []string{"", "   \n", "https://only.example.com/link"} {
		f := &fakeLLM{text: text}
		r, _ := newTestRelay(t, f, Options{EmptyNotice: "Nothing came back."})

		reply, err := r.Respond(context.Background(), 1, "hello", false)
		require.NoError(t, err)
		assert.True(t, reply.Empty, "text %q", text)
		assert.Equal(t, []string{"Nothing came back."}, reply.Chunks)
	}
}

func TestRespond_LongOutputIsChunked(t *testing.T) {
	para := strings.Repeat("All work and no play makes a dull bot. ", 40)
	f := &fakeLLM{text: strings.Repeat(para+"\n\n", 8)}
	r, _ := newTestRelay(t, f, Options{})

	reply, err := r.Respond(context.Background(), 1, "story", false)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(reply.Chunks), 2)
	for _, c := range reply.Chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), outputfmt.TelegramMessageLimit)
	}
}

func TestRespond_UpstreamErrors(t *testing.T) {
	boom := errors.New("rate limited")

	t.Run("completion", func(t *testing.T) {
		f := &fakeLLM{respondErr: boom}
		r, _ := newTestRelay(t, f, Options{})
		_, err := r.Respond(context.Background(), 1, "hello", false)
		require.ErrorIs(t, err, ErrUpstream)
		require.ErrorIs(t, err, boom)
	})

	t.Run("conversation", func(t *testing.T) {
		f := &fakeLLM{createErr: boom}
		r, _ := newTestRelay(t, f, Options{})
		_, err := r.Respond(context.Background(), 1, "hello", false)
		require.ErrorIs(t, err, ErrUpstream)
		require.ErrorIs(t, err, boom)
		assert.Empty(t, f.requests, "no completion without a conversation")
	})

	t.Run("timeout", func(t *testing.T) {
		f := &fakeLLM{blockUntilCtx: true}
		r, _ := newTestRelay(t, f, Options{RequestTimeout: 20 * time.Millisecond})
		_, err := r.Respond(context.Background(), 1, "hello", false)
		require.ErrorIs(t, err, ErrUpstream)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestFormat(t *testing.T) {
	assert.Nil(t, Format("", 100))
	assert.Nil(t, Format("[](https://example.com)", 100))
	assert.Equal(t, []string{"<i>see</i> docs"}, Format("*see* [docs](https://example.com)", 100))
}
