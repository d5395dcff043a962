package telegram

import (
	"strings"
	"time"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

type RunOptions struct {
	Mode               string
	PollTimeout        time.Duration
	TaskTimeout        time.Duration
	MaxConcurrency     int
	DropPendingUpdates bool

	WebhookListen   string
	WebhookPath     string
	WebhookSecret   string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

type runtimeLoopOptions struct {
	Mode               string
	PollTimeout        time.Duration
	TaskTimeout        time.Duration
	MaxConcurrency     int
	DropPendingUpdates bool
	WebhookListen      string
	WebhookPath        string
	WebhookSecret      string
	MaxBodyBytes       int64
	ShutdownTimeout    time.Duration
}

func resolveRuntimeLoopOptionsFromRunOptions(opts RunOptions) runtimeLoopOptions {
	return normalizeRuntimeLoopOptions(runtimeLoopOptions{
		Mode:               opts.Mode,
		PollTimeout:        opts.PollTimeout,
		TaskTimeout:        opts.TaskTimeout,
		MaxConcurrency:     opts.MaxConcurrency,
		DropPendingUpdates: opts.DropPendingUpdates,
		WebhookListen:      opts.WebhookListen,
		WebhookPath:        opts.WebhookPath,
		WebhookSecret:      opts.WebhookSecret,
		MaxBodyBytes:       opts.MaxBodyBytes,
		ShutdownTimeout:    opts.ShutdownTimeout,
	})
}

func normalizeRuntimeLoopOptions(opts runtimeLoopOptions) runtimeLoopOptions {
	opts.Mode = strings.ToLower(strings.TrimSpace(opts.Mode))
	opts.WebhookListen = strings.TrimSpace(opts.WebhookListen)
	opts.WebhookPath = strings.TrimSpace(opts.WebhookPath)
	opts.WebhookSecret = strings.TrimSpace(opts.WebhookSecret)

	if opts.Mode == "" {
		opts.Mode = ModePolling
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Minute
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.WebhookListen == "" {
		opts.WebhookListen = ":8080"
	}
	if opts.WebhookPath == "" {
		opts.WebhookPath = "/webhook"
	}
	if !strings.HasPrefix(opts.WebhookPath, "/") {
		opts.WebhookPath = "/" + opts.WebhookPath
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return opts
}
