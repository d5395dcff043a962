// Package llminspect records every model call to a markdown file so prompts,
// handles and replies can be read back while debugging.
package llminspect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dchen327/telegram-chatbot/llm"
)

type Options struct {
	Mode            string
	TimestampFormat string
	DumpDir         string
	Now             func() time.Time
}

type Recorder struct {
	mu    sync.Mutex
	file  *os.File
	path  string
	count int
}

func NewRecorder(opts Options) (*Recorder, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	startedAt := now()
	dumpDir := strings.TrimSpace(opts.DumpDir)
	if dumpDir == "" {
		dumpDir = "dump"
	}
	if err := os.MkdirAll(dumpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	path := filepath.Join(dumpDir, buildFilename(opts.Mode, startedAt, opts.TimestampFormat))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open inspect file: %w", err)
	}
	header := fmt.Sprintf("---\nmode: %s\ndatetime: %s\n---\n\n",
		strconv.Quote(strings.TrimSpace(opts.Mode)),
		strconv.Quote(startedAt.Format(time.RFC3339)),
	)
	if _, err := file.WriteString(header); err != nil {
		_ = file.Close()
		return nil, err
	}
	return &Recorder{file: file, path: path}, nil
}

// Path returns the file the recorder writes to.
func (r *Recorder) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

func (r *Recorder) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

type field struct {
	key, value string
}

// Dump appends one numbered event. Write errors are dropped; inspection
// never fails a model call.
func (r *Recorder) Dump(label string, fields ...field) {
	if r == nil || r.file == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count++
	var b strings.Builder
	fmt.Fprintf(&b, "## Event #%d: %s\n\n```\n", r.count, label)
	for _, f := range fields {
		fmt.Fprintf(&b, "%s: %s\n", f.key, f.value)
	}
	b.WriteString("```\n\n")
	_, _ = r.file.WriteString(b.String())
	_ = r.file.Sync()
}

var _ llm.Client = (*Client)(nil)

// Client wraps an llm.Client and records each call and its outcome.
type Client struct {
	Base     llm.Client
	Recorder *Recorder
}

func (c *Client) CreateConversation(ctx context.Context, systemInstruction string) (string, error) {
	if c == nil || c.Base == nil {
		return "", fmt.Errorf("inspect client is not initialized")
	}
	h, err := c.Base.CreateConversation(ctx, systemInstruction)
	fields := []field{{"system_instruction", systemInstruction}}
	if err != nil {
		fields = append(fields, field{"error", err.Error()})
	} else {
		fields = append(fields, field{"conversation_id", h})
	}
	c.Recorder.Dump("create_conversation", fields...)
	return h, err
}

func (c *Client) Respond(ctx context.Context, req llm.Request) (llm.Result, error) {
	if c == nil || c.Base == nil {
		return llm.Result{}, fmt.Errorf("inspect client is not initialized")
	}
	res, err := c.Base.Respond(ctx, req)
	fields := []field{
		{"model", req.Model},
		{"conversation_id", req.ConversationID},
		{"web_search", strconv.FormatBool(req.WebSearch)},
		{"reasoning_effort", req.ReasoningEffort},
		{"input", req.Input},
	}
	if err != nil {
		fields = append(fields, field{"error", err.Error()})
	} else {
		fields = append(fields,
			field{"response_id", res.ResponseID},
			field{"duration", res.Duration.String()},
			field{"usage", fmt.Sprintf("in=%d out=%d total=%d", res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.TotalTokens)},
			field{"text", res.Text},
		)
	}
	c.Recorder.Dump("respond", fields...)
	return res, err
}

func buildFilename(mode string, t time.Time, tsFormat string) string {
	mode = strings.TrimSpace(mode)
	if tsFormat == "" {
		tsFormat = "20060102_1504"
	}
	ts := t.Format(tsFormat)
	if mode == "" {
		return fmt.Sprintf("llm_%s.md", ts)
	}
	return fmt.Sprintf("llm_%s_%s.md", mode, ts)
}
