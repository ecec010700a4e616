package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type ClientConfig struct {
	ServerURL   string   `mapstructure:"server_url"`
	STUNServers []string `mapstructure:"stun_servers"`
	TURNServer  string   `mapstructure:"turn_server"`
	TURNUser    string   `mapstructure:"turn_user"`
	TURNPass    string   `mapstructure:"turn_pass"`
	DisplayName string   `mapstructure:"display_name"`
	LogLevel    string   `mapstructure:"log_level"`

	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	ReconnectDelayMax time.Duration `mapstructure:"reconnect_delay_max"`
}

// ClientFlags registers the flags LoadClient understands. Flag names use dashes,
// config keys use underscores.
func ClientFlags(fs *pflag.FlagSet) {
	fs.String("server-url", "", "signaling endpoint, e.g. ws://localhost:8080/api/ws/signal")
	fs.StringSlice("stun-servers", nil, "STUN server urls")
	fs.String("turn-server", "", "TURN server url")
	fs.String("turn-user", "", "TURN username")
	fs.String("turn-pass", "", "TURN credential")
	fs.String("display-name", "", "name shown to other participants")
	fs.String("log-level", "", "debug, info, warn or error")
}

var clientFlagKeys = map[string]string{
	"server_url":   "server-url",
	"stun_servers": "stun-servers",
	"turn_server":  "turn-server",
	"turn_user":    "turn-user",
	"turn_pass":    "turn-pass",
	"display_name": "display-name",
	"log_level":    "log-level",
}

// LoadClient resolves the peer client configuration. Precedence is flags, then
// MEET_* environment, then config/client.<CONFIG_ENV>.yaml, then defaults.
// flags may be nil.
func LoadClient(flags *pflag.FlagSet) (*ClientConfig, error) {
	v := newViper()

	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("turn_server", "")
	v.SetDefault("turn_user", "")
	v.SetDefault("turn_pass", "")
	v.SetDefault("display_name", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("reconnect_delay", "1s")
	v.SetDefault("reconnect_delay_max", "5s")

	if flags != nil {
		for key, name := range clientFlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	readFile(v, configFile("client"))

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("config: server_url is required")
	}
	if cfg.ReconnectAttempts < 0 {
		return nil, fmt.Errorf("config: reconnect_attempts must not be negative")
	}
	if cfg.ReconnectDelayMax < cfg.ReconnectDelay {
		cfg.ReconnectDelayMax = cfg.ReconnectDelay
	}
	return &cfg, nil
}
