// Package config loads the supervisor configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	Agents []AgentSpec `yaml:"agents,omitempty"`

	ReconnectIntervalMs int `yaml:"reconnect_interval_ms"`
	WanderMinMs         int `yaml:"wander_min_ms"`
	WanderMaxMs         int `yaml:"wander_max_ms"`
	RestIntervalMs      int `yaml:"rest_interval_ms"`
	AvoidIntervalMs     int `yaml:"avoid_interval_ms"`
	BroadcastIntervalMs int `yaml:"broadcast_interval_ms"`

	ThreatKinds []string `yaml:"threat_kinds,omitempty"`

	ViewerEnabled bool   `yaml:"viewer_enabled"`
	AuditDB       string `yaml:"audit_db"`
}

// AgentSpec is one agent started at boot.
type AgentSpec struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Enabled  bool   `yaml:"enabled"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ListenAddr:          "127.0.0.1:8200",
		DataDir:             "data",
		ReconnectIntervalMs: 15000,
		WanderMinMs:         3500,
		WanderMaxMs:         6500,
		RestIntervalMs:      10000,
		AvoidIntervalMs:     1500,
		BroadcastIntervalMs: 1000,
		ThreatKinds:         []string{"ZOMBIE", "SKELETON", "SPIDER", "CREEPER"},
		ViewerEnabled:       true,
		AuditDB:             "audit.db",
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = "127.0.0.1:8200"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "data"
	}
	if c.ReconnectIntervalMs <= 0 {
		c.ReconnectIntervalMs = 15000
	}
	if c.WanderMinMs <= 0 {
		c.WanderMinMs = 3500
	}
	if c.WanderMaxMs <= 0 {
		c.WanderMaxMs = 6500
	}
	if c.RestIntervalMs <= 0 {
		c.RestIntervalMs = 10000
	}
	if c.AvoidIntervalMs <= 0 {
		c.AvoidIntervalMs = 1500
	}
	if c.BroadcastIntervalMs <= 0 {
		c.BroadcastIntervalMs = 1000
	}
	if len(c.ThreatKinds) == 0 {
		c.ThreatKinds = []string{"ZOMBIE", "SKELETON", "SPIDER", "CREEPER"}
	}
	if strings.TrimSpace(c.AuditDB) == "" {
		c.AuditDB = "audit.db"
	}
	for i := range c.Agents {
		c.Agents[i].Host = strings.TrimSpace(c.Agents[i].Host)
		c.Agents[i].Username = strings.TrimSpace(c.Agents[i].Username)
	}
}

func (c Config) Validate() error {
	if c.WanderMaxMs < c.WanderMinMs {
		return fmt.Errorf("wander_max_ms must be >= wander_min_ms")
	}
	seen := map[string]bool{}
	for i, a := range c.Agents {
		if !a.Enabled {
			continue
		}
		if a.Host == "" {
			return fmt.Errorf("agents[%d] host must not be empty", i)
		}
		if a.Port <= 0 || a.Port > 65535 {
			return fmt.Errorf("agents[%d] port must be in (0, 65535]", i)
		}
		if a.Username == "" {
			return fmt.Errorf("agents[%d] username must not be empty", i)
		}
		key := fmt.Sprintf("%s:%d/%s", a.Host, a.Port, a.Username)
		if seen[key] {
			return fmt.Errorf("agents[%d] duplicate agent %s", i, key)
		}
		seen[key] = true
	}
	return nil
}
