package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dchen327/telegram-chatbot/cmd/chatbot/telegramcmd"
	"github.com/dchen327/telegram-chatbot/internal/logutil"
)

const (
	envPrefix = "CHATBOT"
)

// Environment names used by existing deployments, bound next to the
// CHATBOT_-prefixed ones.
var legacyEnv = map[string]string{
	"telegram.bot_token":       "TELEGRAM_BOT_TOKEN",
	"telegram.allowed_user_id": "ALLOWED_USER_ID",
	"llm.api_key":              "OPENAI_API_KEY",
	"llm.model":                "OPENAI_MODEL",
	"llm.endpoint":             "OPENAI_BASE_URL",
}

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatbot",
		Short:        "Telegram bot backed by the OpenAI Responses API",
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String("config", "", "Config file path (optional).")
	cmd.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before reading the environment (missing file is ignored).")
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("env_file", cmd.PersistentFlags().Lookup("env-file"))

	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error (defaults to info).")
	cmd.PersistentFlags().String("log-format", "text", "Logging format: text|json.")
	cmd.PersistentFlags().Bool("log-add-source", false, "Include source file:line in logs.")
	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.add_source", cmd.PersistentFlags().Lookup("log-add-source"))

	cmd.PersistentFlags().Bool("inspect-llm", false, "Record every model call to a markdown file under llm.inspect_dir.")
	_ = viper.BindPFlag("llm.inspect", cmd.PersistentFlags().Lookup("inspect-llm"))

	deps := telegramcmd.Dependencies{
		LoggerFromViper: logutil.LoggerFromViper,
		RelayFromViper:  relayFromViper,
		TextsFromViper:  textsFromViper,
	}
	cmd.AddCommand(telegramcmd.NewCommand(deps))
	cmd.AddCommand(telegramcmd.NewWebhookCommand())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func initConfig() {
	initViperDefaults()
	loadDotEnv(viper.GetString("env_file"))

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	bindLegacyEnv()

	cfgFile := strings.TrimSpace(viper.GetString("config"))
	if cfgFile == "" {
		return
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
	}
}

// loadDotEnv fills unset environment variables from path. Variables that are
// already set keep their value.
func loadDotEnv(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", path, err)
	}
}

func bindLegacyEnv() {
	for key, name := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		_ = viper.BindEnv(key, prefixed, name)
	}
}
