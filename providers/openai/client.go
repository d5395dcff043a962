// Package openai implements llm.Client on top of the OpenAI Responses and
// Conversations APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/conversations"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/dchen327/telegram-chatbot/llm"
)

const DefaultBaseURL = "https://api.openai.com/v1/"

type Client struct {
	cli oai.Client
}

type Options struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each HTTP call made by the SDK. Zero keeps the SDK
	// default.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// New builds a client. The SDK's own retries are disabled: a failed turn is
// reported to the user instead of being replayed into the conversation.
func New(opts Options) *Client {
	reqOpts := []option.RequestOption{
		option.WithBaseURL(normalizeBaseURL(opts.BaseURL)),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(opts.APIKey) != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(strings.TrimSpace(opts.APIKey)))
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	reqOpts = append(reqOpts, option.WithHTTPClient(httpClient))
	return &Client{cli: oai.NewClient(reqOpts...)}
}

// normalizeBaseURL accepts both "https://host" and "https://host/v1" and
// returns the form the SDK expects.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL
	}
	raw = strings.TrimRight(raw, "/")
	if !strings.HasSuffix(raw, "/v1") {
		raw += "/v1"
	}
	return raw + "/"
}

func (c *Client) CreateConversation(ctx context.Context, systemInstruction string) (string, error) {
	params := conversations.ConversationNewParams{}
	if s := strings.TrimSpace(systemInstruction); s != "" {
		params.Items = []responses.ResponseInputItemUnionParam{{
			OfMessage: &responses.EasyInputMessageParam{
				Role: responses.EasyInputMessageRoleSystem,
				Content: responses.EasyInputMessageContentUnionParam{
					OfString: oai.String(s),
				},
			},
		}}
	}
	conv, err := c.cli.Conversations.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: create conversation: %w", describe(err))
	}
	if conv == nil || strings.TrimSpace(conv.ID) == "" {
		return "", fmt.Errorf("openai: create conversation: empty id")
	}
	return conv.ID, nil
}

func (c *Client) Respond(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()
	if strings.TrimSpace(req.Model) == "" {
		return llm.Result{}, fmt.Errorf("openai: missing model")
	}
	params := responses.ResponseNewParams{
		Model: oai.ChatModel(req.Model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: oai.String(req.Input),
		},
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = oai.Int(int64(req.MaxOutputTokens))
	}
	if req.ReasoningEffort != "" {
		params.Reasoning = shared.ReasoningParam{Effort: shared.ReasoningEffort(req.ReasoningEffort)}
	}
	if req.ConversationID != "" {
		params.Conversation = responses.ResponseNewParamsConversationUnion{
			OfString: oai.String(req.ConversationID),
		}
	}
	if req.WebSearch {
		params.Tools = []responses.ToolUnionParam{{
			OfWebSearch: &responses.WebSearchToolParam{Type: responses.WebSearchToolTypeWebSearch},
		}}
	}

	resp, err := c.cli.Responses.New(ctx, params)
	if err != nil {
		return llm.Result{}, fmt.Errorf("openai: create response: %w", describe(err))
	}
	if resp.Status == responses.ResponseStatusFailed {
		msg := strings.TrimSpace(resp.Error.Message)
		if msg == "" {
			msg = "response failed"
		}
		return llm.Result{}, fmt.Errorf("openai: %s", msg)
	}
	return llm.Result{
		Text:       resp.OutputText(),
		ResponseID: resp.ID,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		Duration: time.Since(start),
	}, nil
}

// StatusError carries the HTTP status of a failed API call.
type StatusError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai http %d", e.StatusCode)
	}
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.err }

func describe(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.StatusCode, Message: strings.TrimSpace(apiErr.Message), err: err}
	}
	return err
}
