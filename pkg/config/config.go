package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "user123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Host     HostConfig     `json:"host"`
	Bridge   BridgeConfig   `json:"bridge"`
	LogLevel string         `json:"log_level" env:"TELEBRIDGE_LOG_LEVEL"`
}

type TelegramConfig struct {
	BotToken   string `json:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	SelfUserID int64  `json:"self_user_id" env:"TELEGRAM_SELF_USER_ID"`
}

type HostConfig struct {
	ListenAddr string `json:"listen_addr" env:"TELEBRIDGE_LISTEN_ADDR"`
	// AuthToken, when set, is required from hosting clients as a bearer
	// credential on connect.
	AuthToken string `json:"auth_token" env:"TELEBRIDGE_AUTH_TOKEN"`
}

type BridgeConfig struct {
	// ScrollbackReplay re-emits already-seen self-sent messages. Off by
	// default because most clients mishandle duplicates.
	ScrollbackReplay bool                `json:"scrollback_replay" env:"TELEBRIDGE_SCROLLBACK_REPLAY"`
	AllowFrom        FlexibleStringSlice `json:"allow_from"`
}

func DefaultConfig() *Config {
	return &Config{
		Host:     HostConfig{ListenAddr: "127.0.0.1:8790"},
		LogLevel: "info",
	}
}

// LoadConfig reads the JSON config file (missing file falls back to
// defaults) and applies environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
