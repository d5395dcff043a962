package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dchen327/telegram-chatbot/llm"
)

const responseBody = `{
  "id": "resp_1",
  "object": "response",
  "created_at": 1700000000,
  "status": "completed",
  "model": "gpt-5-mini",
  "output": [{
    "type": "message",
    "id": "msg_1",
    "status": "completed",
    "role": "assistant",
    "content": [{"type": "output_text", "text": "Hello **there**", "annotations": []}]
  }],
  "parallel_tool_calls": true,
  "tool_choice": "auto",
  "tools": [],
  "usage": {
    "input_tokens": 10,
    "input_tokens_details": {"cached_tokens": 0},
    "output_tokens": 5,
    "output_tokens_details": {"reasoning_tokens": 0},
    "total_tokens": 15
  }
}`

type recorder struct {
	mu     sync.Mutex
	bodies map[string][]map[string]any
}

func (r *recorder) add(path string, body map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bodies == nil {
		r.bodies = map[string][]map[string]any{}
	}
	r.bodies[path] = append(r.bodies[path], body)
}

func (r *recorder) last(t *testing.T, path string) map[string]any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.bodies[path]
	require.NotEmptyf(t, list, "no request to %s", path)
	return list[len(list)-1]
}

func newTestServer(t *testing.T, rec *recorder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		rec.add(r.URL.Path, body)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/conversations":
			_, _ = io.WriteString(w, `{"id":"conv_123","object":"conversation","created_at":1700000000,"metadata":{}}`)
		case "/v1/responses":
			_, _ = io.WriteString(w, responseBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateConversation_SendsSystemInstruction(t *testing.T) {
	rec := &recorder{}
	srv := newTestServer(t, rec)
	c := New(Options{BaseURL: srv.URL, APIKey: "sk-test", Timeout: 5 * time.Second})

	id, err := c.CreateConversation(context.Background(), "Be concise.")
	require.NoError(t, err)
	assert.Equal(t, "conv_123", id)

	body := rec.last(t, "/v1/conversations")
	items, ok := body["items"].([]any)
	require.True(t, ok, "items missing: %v", body)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "system", item["role"])
	assert.Equal(t, "Be concise.", item["content"])
}

func TestRespond_BuildsRequest(t *testing.T) {
	rec := &recorder{}
	srv := newTestServer(t, rec)
	c := New(Options{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"})

	res, err := c.Respond(context.Background(), llm.Request{
		Model:           "gpt-5-mini",
		Input:           "weather in NYC",
		ConversationID:  "conv_123",
		MaxOutputTokens: 4000,
		ReasoningEffort: llm.ReasoningLow,
		WebSearch:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello **there**", res.Text)
	assert.Equal(t, "resp_1", res.ResponseID)
	assert.Equal(t, llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, res.Usage)

	body := rec.last(t, "/v1/responses")
	assert.Equal(t, "gpt-5-mini", body["model"])
	assert.Equal(t, "weather in NYC", body["input"])
	assert.Equal(t, "conv_123", body["conversation"])
	assert.EqualValues(t, 4000, body["max_output_tokens"])
	assert.Equal(t, map[string]any{"effort": "low"}, body["reasoning"])
	tools, ok := body["tools"].([]any)
	require.True(t, ok, "tools missing: %v", body)
	require.Len(t, tools, 1)
	assert.Equal(t, "web_search", tools[0].(map[string]any)["type"])
}

func TestRespond_NoSearchNoConversation(t *testing.T) {
	rec := &recorder{}
	srv := newTestServer(t, rec)
	c := New(Options{BaseURL: srv.URL, APIKey: "sk-test"})

	_, err := c.Respond(context.Background(), llm.Request{Model: "gpt-5-mini", Input: "hello"})
	require.NoError(t, err)

	body := rec.last(t, "/v1/responses")
	assert.NotContains(t, body, "tools")
	assert.NotContains(t, body, "conversation")
	assert.NotContains(t, body, "reasoning")
	assert.NotContains(t, body, "max_output_tokens")
}

func TestRespond_MissingModel(t *testing.T) {
	c := New(Options{BaseURL: "http://127.0.0.1:0", APIKey: "sk-test"})
	_, err := c.Respond(context.Background(), llm.Request{Input: "hello"})
	require.Error(t, err)
}

func TestRespond_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","param":null,"code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "sk-test"})
	_, err := c.Respond(context.Background(), llm.Request{Model: "gpt-5-mini", Input: "hello"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se), "want StatusError, got %T: %v", err, err)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Message, "Incorrect API key")
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := map[string]string{
		"":                          DefaultBaseURL,
		"https://api.openai.com":    "https://api.openai.com/v1/",
		"https://api.openai.com/":   "https://api.openai.com/v1/",
		"https://api.openai.com/v1": "https://api.openai.com/v1/",
		"http://proxy:8080/v1/":     "http://proxy:8080/v1/",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeBaseURL(in), in)
	}
}
