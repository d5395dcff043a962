package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/dchen327/telegram-chatbot/internal/conversation"
	"github.com/dchen327/telegram-chatbot/internal/llminspect"
	"github.com/dchen327/telegram-chatbot/internal/promptprofile"
	"github.com/dchen327/telegram-chatbot/internal/relay"
	"github.com/dchen327/telegram-chatbot/internal/texts"
	"github.com/dchen327/telegram-chatbot/llm"
	"github.com/dchen327/telegram-chatbot/providers/openai"
)

func textsFromViper() (texts.Catalog, error) {
	return texts.Load(viper.GetString("texts.file"))
}

// relayFromViper builds the model client, the conversation store and the
// relay. The returned close func releases the store's connections.
func relayFromViper(ctx context.Context, logger *slog.Logger) (*relay.Relay, func() error, error) {
	apiKey := strings.TrimSpace(viper.GetString("llm.api_key"))
	if apiKey == "" {
		return nil, nil, fmt.Errorf("missing llm.api_key (set OPENAI_API_KEY or CHATBOT_LLM_API_KEY)")
	}
	catalog, err := textsFromViper()
	if err != nil {
		return nil, nil, err
	}
	var client llm.Client = openai.New(openai.Options{
		BaseURL: viper.GetString("llm.endpoint"),
		APIKey:  apiKey,
	})
	closeInspect := func() error { return nil }
	if viper.GetBool("llm.inspect") {
		rec, err := llminspect.NewRecorder(llminspect.Options{Mode: "relay", DumpDir: viper.GetString("llm.inspect_dir")})
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("llm_inspect_enabled", "path", rec.Path())
		client = &llminspect.Client{Base: client, Recorder: rec}
		closeInspect = rec.Close
	}

	instruction, err := promptprofile.SystemInstruction(promptprofile.SystemOptions{
		PersonaPath: viper.GetString("prompt.persona_path"),
		Logger:      logger,
	})
	if err != nil {
		_ = closeInspect()
		return nil, nil, err
	}

	store, closeStoreOnly, err := storeFromViper(ctx, client, instruction, logger)
	if err != nil {
		_ = closeInspect()
		return nil, nil, err
	}
	closeStore := func() error {
		return errors.Join(closeStoreOnly(), closeInspect())
	}

	r, err := relay.New(client, store, relay.Options{
		Model:           viper.GetString("llm.model"),
		MaxOutputTokens: viper.GetInt("llm.max_output_tokens"),
		ReasoningEffort: strings.ToLower(strings.TrimSpace(viper.GetString("llm.reasoning_effort"))),
		RequestTimeout:  viper.GetDuration("llm.request_timeout"),
		SearchKeywords:  viper.GetStringSlice("llm.search_keywords"),
		EmptyNotice:     catalog.EmptyResponse,
	}, logger)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	opts := r.Options()
	logger.Info("relay_ready",
		"model", opts.Model,
		"max_output_tokens", opts.MaxOutputTokens,
		"reasoning_effort", opts.ReasoningEffort,
		"request_timeout", opts.RequestTimeout.String(),
		"search_keywords", opts.SearchKeywords,
		"conversation_backend", viper.GetString("conversation.backend"),
	)
	return r, closeStore, nil
}

func storeFromViper(ctx context.Context, creator llm.Client, instruction string, logger *slog.Logger) (conversation.Store, func() error, error) {
	opts := conversation.Options{SystemInstruction: instruction, Logger: logger}
	noop := func() error { return nil }

	switch backend := strings.ToLower(strings.TrimSpace(viper.GetString("conversation.backend"))); backend {
	case "", "memory":
		s, err := conversation.NewMemory(creator, viper.GetInt("conversation.max_users"), opts)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     viper.GetString("conversation.redis.addr"),
			Password: viper.GetString("conversation.redis.password"),
			DB:       viper.GetInt("conversation.redis.db"),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", viper.GetString("conversation.redis.addr"), err)
		}
		s, err := conversation.NewRedis(creator, rdb, conversation.RedisOptions{
			Prefix: viper.GetString("conversation.redis.prefix"),
			TTL:    viper.GetDuration("conversation.ttl"),
		}, opts)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return s, rdb.Close, nil
	case "file":
		s, err := conversation.NewFile(creator, viper.GetString("conversation.file.path"), opts)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown conversation.backend %q (want memory, redis or file)", backend)
	}
}
