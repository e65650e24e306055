package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"agentorg/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Logger   LoggerConfig         `yaml:"logger"`
	Tracer   TracerConfig         `yaml:"tracer"`
	LLM      LLMConfig            `yaml:"llm"`
	Graph    GraphConfig          `yaml:"graph"`
	Personas []domain.PersonaSpec `yaml:"personas"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"` // SSE idle keepalive period
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// LLMConfig holds persona execution settings.
type LLMConfig struct {
	Provider string `yaml:"provider"` // bedrock, canned
	Region   string `yaml:"region"`
	Model    string `yaml:"model"` // default model for personas without one
	MaxIter  int    `yaml:"max_iter"`
}

// GraphConfig holds the permission graph store settings and its seed edges.
type GraphConfig struct {
	Path     string           `yaml:"path"` // SQLite database path; empty disables the graph
	Grants   []GrantConfig    `yaml:"grants"`
	Owners   map[string]string `yaml:"owners"`   // data type -> owning persona slug
	Policies []PolicyConfig   `yaml:"policies"`
}

// GrantConfig declares that a persona may request a data type.
type GrantConfig struct {
	Persona  string `yaml:"persona"`
	DataType string `yaml:"data_type"`
}

// PolicyConfig attaches an approval requirement to a data type.
type PolicyConfig struct {
	DataType string `yaml:"data_type"`
	Level    string `yaml:"level"`
	Reason   string `yaml:"reason"`
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			KeepaliveInterval: 30 * time.Second,
		},
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
		LLM:    LLMConfig{Provider: "bedrock", Region: "us-east-1", MaxIter: 8},
		Graph:  GraphConfig{Path: "agentorg.db"},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing file
// yields the defaults so the service can start from env alone.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTORG_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AGENTORG_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENTORG_GRAPH_PATH"); v != "" {
		cfg.Graph.Path = v
	}
	if v := os.Getenv("AGENTORG_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("AGENTORG_AWS_REGION"); v != "" {
		cfg.LLM.Region = v
	}
}

// Validate rejects configs that cannot possibly serve traffic.
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("config: server.addr must not be empty")
	}
	if cfg.Server.KeepaliveInterval <= 0 {
		return fmt.Errorf("config: server.keepalive_interval must be positive")
	}
	seen := make(map[string]bool, len(cfg.Personas))
	for _, p := range cfg.Personas {
		if p.Slug == "" {
			return fmt.Errorf("config: persona with empty slug")
		}
		if seen[p.Slug] {
			return fmt.Errorf("config: duplicate persona slug %q", p.Slug)
		}
		seen[p.Slug] = true
		for _, target := range p.Routing {
			if target == p.Slug {
				return fmt.Errorf("config: persona %q routes to itself", p.Slug)
			}
		}
	}
	for _, g := range cfg.Graph.Grants {
		if g.Persona == "" || g.DataType == "" {
			return fmt.Errorf("config: graph grant missing persona or data_type")
		}
	}
	for _, p := range cfg.Graph.Policies {
		if p.DataType == "" || p.Level == "" {
			return fmt.Errorf("config: graph policy missing data_type or level")
		}
	}
	return nil
}
