package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_concurrency", 3)
	viper.SetDefault("telegram.allowed_chat_ids", []string{})

	viper.SetDefault("logging.level", "")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
