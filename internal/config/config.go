// Package config holds the runtime configuration: one section per
// platform gateway plus shared monitor settings. Files are JSON5 so
// hand-edited configs can carry comments and trailing commas.
package config

// Config is the root configuration document.
type Config struct {
	Gateways GatewaysConfig `json:"gateways"`
	Monitor  MonitorConfig  `json:"monitor"`
}

// GatewaysConfig contains per-platform gateway configuration.
type GatewaysConfig struct {
	DingTalk DingTalkConfig `json:"dingtalk"`
	Feishu   FeishuConfig   `json:"feishu"`
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	WeWork   WeWorkConfig   `json:"wework"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

type DingTalkConfig struct {
	Enabled      bool   `json:"enabled"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AgentID      string `json:"agent_id,omitempty"`
	RobotCode    string `json:"robot_code,omitempty"`
	MessageType  string `json:"message_type,omitempty"` // "text" (default) or "markdown"
}

type FeishuConfig struct {
	Enabled   bool   `json:"enabled"`
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
	Domain    string `json:"domain,omitempty"` // "feishu" (default, China) or "lark" (global)
}

type DiscordConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Proxy    string `json:"proxy,omitempty"` // SOCKS5/HTTP proxy URL for api.telegram.org
}

type WeWorkConfig struct {
	Enabled     bool   `json:"enabled"`
	WebhookURL  string `json:"webhook_url"`
	MessageType string `json:"message_type,omitempty"` // "text" (default) or "markdown"
}

type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled"`
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"access_token"`
	APIVersion    string `json:"api_version,omitempty"` // default "v18.0"
}

// MonitorConfig controls the network reachability monitor.
type MonitorConfig struct {
	Enabled bool `json:"enabled"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateways: GatewaysConfig{
			DingTalk: DingTalkConfig{MessageType: "text"},
			Feishu:   FeishuConfig{Domain: "feishu"},
			WeWork:   WeWorkConfig{MessageType: "text"},
			WhatsApp: WhatsAppConfig{APIVersion: "v18.0"},
		},
		Monitor: MonitorConfig{Enabled: true},
	}
}

// EnabledGateways returns the names of all enabled platforms in a stable
// order.
func (c *Config) EnabledGateways() []string {
	var names []string
	g := c.Gateways
	if g.DingTalk.Enabled {
		names = append(names, "dingtalk")
	}
	if g.Feishu.Enabled {
		names = append(names, "feishu")
	}
	if g.Discord.Enabled {
		names = append(names, "discord")
	}
	if g.Telegram.Enabled {
		names = append(names, "telegram")
	}
	if g.WeWork.Enabled {
		names = append(names, "wework")
	}
	if g.WhatsApp.Enabled {
		names = append(names, "whatsapp")
	}
	return names
}
