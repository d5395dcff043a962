package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dchen327/telegram-chatbot/internal/telegramutil"
)

const DefaultBaseURL = "https://api.telegram.org"

// Telegram Bot API

type API struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewAPI(httpClient *http.Client, baseURL, token string) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &API{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
	}
}

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message,omitempty"`
}

type telegramMessage struct {
	MessageID int64            `json:"message_id"`
	Date      int64            `json:"date,omitempty"`
	Chat      *telegramChat    `json:"chat,omitempty"`
	From      *telegramUser    `json:"from,omitempty"`
	Entities  []telegramEntity `json:"entities,omitempty"`
	Text      string           `json:"text,omitempty"`
	Caption   string           `json:"caption,omitempty"`
}

type telegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

type telegramUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type telegramEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// WebhookInfo mirrors the fields of getWebhookInfo the CLI reports.
type WebhookInfo struct {
	URL                  string `json:"url"`
	HasCustomCertificate bool   `json:"has_custom_certificate"`
	PendingUpdateCount   int    `json:"pending_update_count"`
	IPAddress            string `json:"ip_address,omitempty"`
	LastErrorDate        int64  `json:"last_error_date,omitempty"`
	LastErrorMessage     string `json:"last_error_message,omitempty"`
	MaxConnections       int    `json:"max_connections,omitempty"`
}

type SetWebhookOptions struct {
	URL                string
	SecretToken        string
	DropPendingUpdates bool
	AllowedUpdates     []string
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

type telegramSendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
}

type telegramSendChatActionRequest struct {
	ChatID int64  `json:"chat_id"`
	Action string `json:"action"`
}

type telegramSetWebhookRequest struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secret_token,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
}

type telegramDeleteWebhookRequest struct {
	DropPendingUpdates bool `json:"drop_pending_updates,omitempty"`
}

// RequestError is returned when Telegram answers with a non-2xx status or
// ok=false.
type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	prefix := "telegram"
	if e.Method != "" {
		prefix = "telegram " + e.Method
	}
	desc := strings.TrimSpace(e.Description)
	if desc != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("%s: http %d: %s", prefix, e.StatusCode, desc)
		}
		return prefix + ": " + desc
	}
	body := strings.TrimSpace(e.Body)
	if e.StatusCode > 0 {
		if body != "" {
			return fmt.Sprintf("%s: http %d: %s", prefix, e.StatusCode, body)
		}
		return fmt.Sprintf("%s: http %d", prefix, e.StatusCode)
	}
	if body != "" {
		return prefix + ": " + body
	}
	return prefix + ": request failed"
}

// Is lets errors.Is(err, telegramutil.ErrParseEntities) match markup
// rejections.
func (e *RequestError) Is(target error) bool {
	return target == telegramutil.ErrParseEntities && e != nil && isParseDescription(e.Description)
}

func isParseDescription(desc string) bool {
	desc = strings.ToLower(strings.TrimSpace(desc))
	return strings.Contains(desc, "can't parse entities") || strings.Contains(desc, "can't parse entity")
}

// IsParseError reports whether Telegram rejected a message's markup.
func IsParseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, telegramutil.ErrParseEntities) {
		return true
	}
	return isParseDescription(err.Error())
}

func isPollTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}

func (api *API) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", api.baseURL, api.token, method)
}

// call posts body as JSON (or issues a GET when body is nil) and decodes the
// result field into out when out is non-nil.
func (api *API) call(ctx context.Context, method string, query url.Values, body any, out any) error {
	u := api.methodURL(method)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	httpMethod := http.MethodGet
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("telegram %s: encode request: %w", method, err)
		}
		httpMethod = http.MethodPost
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := api.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env telegramResponse
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.OK {
		return &RequestError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   env.ErrorCode,
			Description: env.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}
	if decodeErr != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, decodeErr)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func (api *API) GetMe(ctx context.Context) (*telegramUser, error) {
	var me telegramUser
	if err := api.call(ctx, "getMe", nil, nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for updates after offset and returns the offset to
// use on the next call.
func (api *API) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegramUpdate, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(secs))
	q.Set("allowed_updates", `["message"]`)
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	var updates []telegramUpdate
	if err := api.call(reqCtx, "getUpdates", q, nil, &updates); err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

func (api *API) sendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	return api.call(ctx, "sendMessage", nil, telegramSendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	}, nil)
}

// SendHTML sends text with the HTML parse mode.
func (api *API) SendHTML(ctx context.Context, chatID int64, text string) error {
	return api.sendMessage(ctx, chatID, text, "HTML")
}

func (api *API) SendPlain(ctx context.Context, chatID int64, text string) error {
	return api.sendMessage(ctx, chatID, text, "")
}

func (api *API) SendChatAction(ctx context.Context, chatID int64, action string) error {
	action = strings.TrimSpace(action)
	if action == "" {
		action = "typing"
	}
	return api.call(ctx, "sendChatAction", nil, telegramSendChatActionRequest{ChatID: chatID, Action: action}, nil)
}

func (api *API) SetWebhook(ctx context.Context, opts SetWebhookOptions) error {
	u := strings.TrimSpace(opts.URL)
	if u == "" {
		return fmt.Errorf("telegram setWebhook: missing url")
	}
	return api.call(ctx, "setWebhook", nil, telegramSetWebhookRequest{
		URL:                u,
		SecretToken:        strings.TrimSpace(opts.SecretToken),
		DropPendingUpdates: opts.DropPendingUpdates,
		AllowedUpdates:     opts.AllowedUpdates,
	}, nil)
}

func (api *API) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return api.call(ctx, "deleteWebhook", nil, telegramDeleteWebhookRequest{DropPendingUpdates: dropPending}, nil)
}

func (api *API) GetWebhookInfo(ctx context.Context) (WebhookInfo, error) {
	var info WebhookInfo
	err := api.call(ctx, "getWebhookInfo", nil, nil, &info)
	return info, err
}
