package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/dchen327/telegram-chatbot/internal/relay"
)

func initViperDefaults() {
	// LLM
	viper.SetDefault("llm.endpoint", "https://api.openai.com")
	viper.SetDefault("llm.model", "gpt-5-mini")
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.request_timeout", time.Duration(0))
	viper.SetDefault("llm.search_keywords", relay.DefaultSearchKeywords)
	viper.SetDefault("llm.max_output_tokens", 4000)
	viper.SetDefault("llm.reasoning_effort", "low")
	viper.SetDefault("llm.inspect", false)
	viper.SetDefault("llm.inspect_dir", "dump")

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.allowed_user_id", "")
	viper.SetDefault("telegram.mode", "polling")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.task_timeout", 5*time.Minute)
	viper.SetDefault("telegram.max_concurrency", 4)
	viper.SetDefault("telegram.drop_pending_updates", false)
	viper.SetDefault("telegram.webhook_listen", ":8080")
	viper.SetDefault("telegram.webhook_path", "/webhook")
	viper.SetDefault("telegram.webhook_secret", "")

	// Conversations
	viper.SetDefault("conversation.backend", "memory")
	viper.SetDefault("conversation.max_users", 10000)
	viper.SetDefault("conversation.ttl", time.Duration(0))
	viper.SetDefault("conversation.redis.addr", "127.0.0.1:6379")
	viper.SetDefault("conversation.redis.password", "")
	viper.SetDefault("conversation.redis.db", 0)
	viper.SetDefault("conversation.redis.prefix", "chatbot:conversation")
	viper.SetDefault("conversation.file.path", "data/conversations.json")

	// Local chat
	viper.SetDefault("chat.user_id", 1)

	// Prompts and fixed replies
	viper.SetDefault("prompt.persona_path", "")
	viper.SetDefault("texts.file", "")

	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
