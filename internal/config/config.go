// Package config loads the relay and client configuration: defaults first,
// then an optional YAML file, then environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Relay  RelayConfig  `yaml:"relay"`
	Client ClientConfig `yaml:"client"`
}

// RelayConfig drives the broadcast relay server.
type RelayConfig struct {
	ListenAddr  string `yaml:"listenAddr"`
	MetricsAddr string `yaml:"metricsAddr"`

	// Outbound queue depth per connection; a peer that falls this far
	// behind is disconnected rather than allowed to stall the fan-out.
	QueueDepth int `yaml:"queueDepth"`

	IngressRPS   float64 `yaml:"ingressRPS"`
	IngressBurst int     `yaml:"ingressBurst"`
	ConnRPS      float64 `yaml:"connRPS"`
	ConnBurst    int     `yaml:"connBurst"`

	WriteTimeout time.Duration `yaml:"writeTimeout"`
	PingInterval time.Duration `yaml:"pingInterval"`
}

// ClientConfig drives the client core: the two collaborator origins, the
// credentials vault and the timing knobs of the chat coordinator.
type ClientConfig struct {
	APIOrigin   string `yaml:"apiOrigin"`
	RelayOrigin string `yaml:"relayOrigin"`

	CredentialsPath string `yaml:"credentialsPath"`

	TypingDebounce time.Duration `yaml:"typingDebounce"`
	TypingExpiry   time.Duration `yaml:"typingExpiry"`

	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`

	MessagePageSize int `yaml:"messagePageSize"`
}

func Default() Config {
	return Config{
		Relay: RelayConfig{
			ListenAddr:   "127.0.0.1:3000",
			MetricsAddr:  "",
			QueueDepth:   256,
			IngressRPS:   50,
			IngressBurst: 100,
			ConnRPS:      5,
			ConnBurst:    10,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
		},
		Client: ClientConfig{
			APIOrigin:           "http://127.0.0.1:8080",
			RelayOrigin:         "ws://127.0.0.1:3000",
			CredentialsPath:     "",
			TypingDebounce:      2 * time.Second,
			TypingExpiry:        6 * time.Second,
			ReconnectInterval:   1 * time.Second,
			ReconnectBackoffMax: 30 * time.Second,
			MessagePageSize:     100,
		},
	}
}

// LoadFromPath merges defaults, the first readable candidate file and env
// overrides. A missing or unparsable file falls back silently, matching how
// the daemon boots on a fresh machine.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/config.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	return cfg
}

func merge(dst *Config, src Config) {
	if src.Relay.ListenAddr != "" {
		dst.Relay.ListenAddr = src.Relay.ListenAddr
	}
	if src.Relay.MetricsAddr != "" {
		dst.Relay.MetricsAddr = src.Relay.MetricsAddr
	}
	if src.Relay.QueueDepth > 0 {
		dst.Relay.QueueDepth = src.Relay.QueueDepth
	}
	if src.Relay.IngressRPS > 0 {
		dst.Relay.IngressRPS = src.Relay.IngressRPS
	}
	if src.Relay.IngressBurst > 0 {
		dst.Relay.IngressBurst = src.Relay.IngressBurst
	}
	if src.Relay.ConnRPS > 0 {
		dst.Relay.ConnRPS = src.Relay.ConnRPS
	}
	if src.Relay.ConnBurst > 0 {
		dst.Relay.ConnBurst = src.Relay.ConnBurst
	}
	if src.Relay.WriteTimeout > 0 {
		dst.Relay.WriteTimeout = src.Relay.WriteTimeout
	}
	if src.Relay.PingInterval > 0 {
		dst.Relay.PingInterval = src.Relay.PingInterval
	}

	if src.Client.APIOrigin != "" {
		dst.Client.APIOrigin = src.Client.APIOrigin
	}
	if src.Client.RelayOrigin != "" {
		dst.Client.RelayOrigin = src.Client.RelayOrigin
	}
	if src.Client.CredentialsPath != "" {
		dst.Client.CredentialsPath = src.Client.CredentialsPath
	}
	if src.Client.TypingDebounce > 0 {
		dst.Client.TypingDebounce = src.Client.TypingDebounce
	}
	if src.Client.TypingExpiry > 0 {
		dst.Client.TypingExpiry = src.Client.TypingExpiry
	}
	if src.Client.ReconnectInterval > 0 {
		dst.Client.ReconnectInterval = src.Client.ReconnectInterval
	}
	if src.Client.ReconnectBackoffMax > 0 {
		dst.Client.ReconnectBackoffMax = src.Client.ReconnectBackoffMax
	}
	if src.Client.MessagePageSize > 0 {
		dst.Client.MessagePageSize = src.Client.MessagePageSize
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MLC_RELAY_LISTEN_ADDR")); v != "" {
		cfg.Relay.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MLC_RELAY_METRICS_ADDR")); v != "" {
		cfg.Relay.MetricsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("MLC_RELAY_QUEUE_DEPTH")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Relay.QueueDepth = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("MLC_API_ORIGIN")); v != "" {
		cfg.Client.APIOrigin = v
	}
	if v := strings.TrimSpace(os.Getenv("MLC_RELAY_ORIGIN")); v != "" {
		cfg.Client.RelayOrigin = v
	}
}
