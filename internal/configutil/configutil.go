// Package configutil resolves command options that can come from a flag or
// from viper (config file, CHATBOT_* env, legacy env names).
package configutil

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagOrViper returns the flag value when the flag was set explicitly;
// otherwise a configured viper key wins over the flag default.
func flagOrViper[T any](cmd *cobra.Command, flagName, viperKey string, fromFlag func(string) (T, error), fromViper func(string) T) T {
	v, _ := fromFlag(flagName)
	if cmd.Flags().Changed(flagName) {
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return fromViper(viperKey)
	}
	return v
}

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	return flagOrViper(cmd, flagName, viperKey, cmd.Flags().GetString, viper.GetString)
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	return flagOrViper(cmd, flagName, viperKey, cmd.Flags().GetBool, viper.GetBool)
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	return flagOrViper(cmd, flagName, viperKey, cmd.Flags().GetInt, viper.GetInt)
}

func FlagOrViperInt64(cmd *cobra.Command, flagName, viperKey string) int64 {
	return flagOrViper(cmd, flagName, viperKey, cmd.Flags().GetInt64, viper.GetInt64)
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	return flagOrViper(cmd, flagName, viperKey, cmd.Flags().GetDuration, viper.GetDuration)
}
