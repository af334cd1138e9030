package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values, and providing credentials via env
// auto-enables the platform.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("GLOWIRE_DINGTALK_CLIENT_ID", &c.Gateways.DingTalk.ClientID)
	envStr("GLOWIRE_DINGTALK_CLIENT_SECRET", &c.Gateways.DingTalk.ClientSecret)
	envStr("GLOWIRE_FEISHU_APP_ID", &c.Gateways.Feishu.AppID)
	envStr("GLOWIRE_FEISHU_APP_SECRET", &c.Gateways.Feishu.AppSecret)
	envStr("GLOWIRE_DISCORD_BOT_TOKEN", &c.Gateways.Discord.BotToken)
	envStr("GLOWIRE_TELEGRAM_BOT_TOKEN", &c.Gateways.Telegram.BotToken)
	envStr("GLOWIRE_WEWORK_WEBHOOK_URL", &c.Gateways.WeWork.WebhookURL)
	envStr("GLOWIRE_WHATSAPP_PHONE_NUMBER_ID", &c.Gateways.WhatsApp.PhoneNumberID)
	envStr("GLOWIRE_WHATSAPP_ACCESS_TOKEN", &c.Gateways.WhatsApp.AccessToken)

	if c.Gateways.DingTalk.ClientID != "" && c.Gateways.DingTalk.ClientSecret != "" {
		if os.Getenv("GLOWIRE_DINGTALK_CLIENT_ID") != "" {
			c.Gateways.DingTalk.Enabled = true
		}
	}
	if os.Getenv("GLOWIRE_FEISHU_APP_ID") != "" && c.Gateways.Feishu.AppSecret != "" {
		c.Gateways.Feishu.Enabled = true
	}
	if os.Getenv("GLOWIRE_DISCORD_BOT_TOKEN") != "" {
		c.Gateways.Discord.Enabled = true
	}
	if os.Getenv("GLOWIRE_TELEGRAM_BOT_TOKEN") != "" {
		c.Gateways.Telegram.Enabled = true
	}
	if os.Getenv("GLOWIRE_WEWORK_WEBHOOK_URL") != "" {
		c.Gateways.WeWork.Enabled = true
	}
	if os.Getenv("GLOWIRE_WHATSAPP_ACCESS_TOKEN") != "" && c.Gateways.WhatsApp.PhoneNumberID != "" {
		c.Gateways.WhatsApp.Enabled = true
	}
}
