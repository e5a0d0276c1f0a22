package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/CTAG07/nest/pkg/nest"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP servers.
type ServerConfig struct {
	SiteAddr       string   `json:"site_addr" toml:"site_addr"`
	ApiAddr        string   `json:"api_addr" toml:"api_addr"`
	LogLevel       string   `json:"log_level" toml:"log_level"`
	TrustedProxies []string `json:"trusted_proxies" toml:"trusted_proxies"`
	DatabasePath   string   `json:"database_path" toml:"database_path"`
	IndexPage      string   `json:"index_page" toml:"index_page"`
	// Headers are set on every rendered page response.
	Headers map[string]string `json:"headers" toml:"headers"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig `json:"server_config" toml:"server_config"`
	Nest   *nest.Config  `json:"nest_config" toml:"nest_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		SiteAddr:       ":7377",
		ApiAddr:        ":7378",
		LogLevel:       "info",
		TrustedProxies: []string{},
		DatabasePath:   "./data/nest.db?_journal_mode=WAL&_busy_timeout=5000",
		IndexPage:      "index",
		Headers: map[string]string{
			"Cache-Control": "no-cache",
			"Content-Type":  "text/html; charset=utf-8",
		},
	}
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Nest:   nest.DefaultConfig(),
	}
}

// isTOML reports whether path should be read and written as TOML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func encodeConfig(path string, config *Config) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(config); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return json.MarshalIndent(config, "", "  ")
}

// LoadConfig reads the configuration from a JSON or TOML file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = encodeConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isTOML(path) {
		err = toml.Unmarshal(file, config)
	} else {
		err = json.Unmarshal(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Nest == nil {
		config.Nest = nest.DefaultConfig()
	}
	return config, nil
}

// errConfigRejected marks an Update that failed validation, as opposed to
// one that failed to save.
var errConfigRejected = errors.New("configuration rejected")

// ConfigManager handles thread-safe access to configuration and derived state (trusted proxies).
type ConfigManager struct {
	config       *Config
	mu           sync.RWMutex
	trustedCIDRs []*net.IPNet
	trustedIPs   []net.IP
	configPath   string
	logger       *slog.Logger
	engine       *nest.Nest
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	cm := &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}
	cm.refreshCache()

	return cm, nil
}

// SetEngine registers the template engine to receive config updates.
func (cm *ConfigManager) SetEngine(engine *nest.Nest) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.engine = engine
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config
}

// Update validates the new configuration against the engine, saves it to
// disk, and refreshes derived state. If the engine rejects the new
// configuration or the file cannot be written, the engine, the in-memory
// configuration and the file on disk are left as they were.
func (cm *ConfigManager) Update(newConfig Config) error {
	if newConfig.Server == nil || newConfig.Nest == nil {
		return fmt.Errorf("%w: both server_config and nest_config are required", errConfigRejected)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := encodeConfig(cm.configPath, &newConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	var previous *nest.Config
	if cm.engine != nil {
		prev := cm.engine.GetConfig()
		previous = &prev
		if err = cm.engine.SetConfig(newConfig.Nest); err != nil {
			return fmt.Errorf("%w: %w", errConfigRejected, err)
		}
	}

	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		if previous != nil {
			if rbErr := cm.engine.SetConfig(previous); rbErr != nil {
				cm.logger.Error("Failed to restore previous template configuration", "error", rbErr)
			}
		}
		return fmt.Errorf("failed to write config file: %w", err)
	}

	cm.config = &newConfig
	cm.refreshCache()
	return nil
}

// IsTrusted checks if an IP is in the trusted proxies list using the cache.
func (cm *ConfigManager) IsTrusted(ipAddr string) bool {
	parsedIP := net.ParseIP(ipAddr)
	if parsedIP == nil {
		return false
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, ipNet := range cm.trustedCIDRs {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}
	for _, trustedIP := range cm.trustedIPs {
		if trustedIP.Equal(parsedIP) {
			return true
		}
	}
	return false
}

// refreshCache rebuilds the binary IP lists from the config strings.
func (cm *ConfigManager) refreshCache() {
	var cidrs []*net.IPNet
	var ips []net.IP

	for _, t := range cm.config.Server.TrustedProxies {
		if strings.Contains(t, "/") {
			_, ipNet, err := net.ParseCIDR(t)
			if err == nil {
				cidrs = append(cidrs, ipNet)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy CIDR", "cidr", t, "error", err)
			}
		} else {
			ip := net.ParseIP(t)
			if ip != nil {
				ips = append(ips, ip)
			} else {
				cm.logger.Warn("Failed to parse trusted proxy IP", "ip", t)
			}
		}
	}
	cm.trustedCIDRs = cidrs
	cm.trustedIPs = ips
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
