// Package config loads the agent's YAML configuration: game connection
// details, LLM provider settings, behavior toggles, persistence target, and
// memory trimming thresholds. Values load from a file via Default()+Load(path),
// then environment variables overlay on top, mirroring the teacher's
// Default()/Load()/applyEnvOverrides() layering.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voxelmind/agentcore/internal/agenterrors"
)

// GameConfig describes how to connect to the game server.
type GameConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Version  string `yaml:"version"`
}

// LLMConfig configures the model provider used by the bridge.
type LLMConfig struct {
	Provider          string  `yaml:"provider"` // "anthropic" or "openai"
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"api_key"`
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	MaxTokens         int     `yaml:"max_tokens"`
	MaxToolIterations int     `yaml:"max_tool_iterations"`
}

// BehaviorsConfig toggles autonomous bot behaviors separate from the
// decision cycle (handled directly by the game client's plugins).
type BehaviorsConfig struct {
	AutoEat  bool `yaml:"auto_eat"`
	AutoArmor bool `yaml:"auto_armor"`
}

// PersistenceConfig points at the durable store backing the Persistence Port.
type PersistenceConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// MemoryConfig bounds the in-context conversation window.
type MemoryConfig struct {
	MaxTokens     int `yaml:"max_tokens"`
	KeepMessages  int `yaml:"keep_messages"`
}

// EventBusConfig optionally mirrors lifecycle events onto Redis Streams.
type EventBusConfig struct {
	RedisAddr string `yaml:"redis_addr"` // empty disables the Redis mirror
	StreamKey string `yaml:"stream_key"`
}

// Config is the root configuration for the agent process.
type Config struct {
	Game        GameConfig        `yaml:"game"`
	LLM         LLMConfig         `yaml:"llm"`
	Behaviors   BehaviorsConfig   `yaml:"behaviors"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Memory      MemoryConfig      `yaml:"memory"`
	EventBus    EventBusConfig    `yaml:"event_bus"`
}

// Default returns a Config with sensible defaults for local play against a
// vanilla server.
func Default() *Config {
	return &Config{
		Game: GameConfig{
			Host:     "localhost",
			Port:     25565,
			Username: "agentcore",
			Version:  "1.20.4",
		},
		LLM: LLMConfig{
			Provider:          "anthropic",
			Model:             "claude-sonnet-4-5-20250929",
			Temperature:       0.7,
			TopP:              1.0,
			MaxTokens:         4096,
			MaxToolIterations: 8,
		},
		Behaviors: BehaviorsConfig{
			AutoEat:   true,
			AutoArmor: true,
		},
		Persistence: PersistenceConfig{
			URI:      "mongodb://localhost:27017",
			Database: "agentcore",
		},
		Memory: MemoryConfig{
			MaxTokens:    8000,
			KeepMessages: 6,
		},
	}
}

// Load reads config from a YAML file, overlays env vars, then validates.
// A missing file is not fatal: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			if verr := cfg.Validate(); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, agenterrors.New(agenterrors.ConfigInvalid, "read config", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, agenterrors.New(agenterrors.ConfigInvalid, "parse config", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays environment variables onto the config. Env
// vars take precedence over file values, matching the teacher's layering.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envStr("AGENTCORE_GAME_HOST", &c.Game.Host)
	envInt("AGENTCORE_GAME_PORT", &c.Game.Port)
	envStr("AGENTCORE_GAME_USERNAME", &c.Game.Username)
	envStr("AGENTCORE_GAME_VERSION", &c.Game.Version)

	envStr("AGENTCORE_LLM_PROVIDER", &c.LLM.Provider)
	envStr("AGENTCORE_LLM_MODEL", &c.LLM.Model)
	envFloat("AGENTCORE_LLM_TEMPERATURE", &c.LLM.Temperature)
	envFloat("AGENTCORE_LLM_TOP_P", &c.LLM.TopP)
	envInt("AGENTCORE_LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	envInt("AGENTCORE_LLM_MAX_TOOL_ITERATIONS", &c.LLM.MaxToolIterations)

	// API keys are secrets: environment values override a key read from the
	// config file, and Save never writes a key back to the file.
	if v := os.Getenv("AGENTCORE_ANTHROPIC_API_KEY"); v != "" && strings.EqualFold(c.LLM.Provider, "anthropic") {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("AGENTCORE_OPENAI_API_KEY"); v != "" && strings.EqualFold(c.LLM.Provider, "openai") {
		c.LLM.APIKey = v
	}
	envStr("AGENTCORE_LLM_API_KEY", &c.LLM.APIKey)

	envBool("AGENTCORE_AUTO_EAT", &c.Behaviors.AutoEat)
	envBool("AGENTCORE_AUTO_ARMOR", &c.Behaviors.AutoArmor)

	envStr("AGENTCORE_PERSISTENCE_URI", &c.Persistence.URI)
	envStr("AGENTCORE_PERSISTENCE_DATABASE", &c.Persistence.Database)

	envInt("AGENTCORE_MEMORY_MAX_TOKENS", &c.Memory.MaxTokens)
	envInt("AGENTCORE_MEMORY_KEEP_MESSAGES", &c.Memory.KeepMessages)

	envStr("AGENTCORE_EVENTBUS_REDIS_ADDR", &c.EventBus.RedisAddr)
	envStr("AGENTCORE_EVENTBUS_STREAM_KEY", &c.EventBus.StreamKey)
}

// ApplyEnvOverrides re-applies environment variable overrides onto an
// already-loaded config, useful after a config reload from disk.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Validate checks invariants that must hold before the agent process can
// start. A missing LLM API key is fatal, per the game client / LLM service
// external interface contract.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return agenterrors.New(agenterrors.ConfigInvalid, "validate",
			fmt.Errorf("llm.api_key is required (set it in the config file or via AGENTCORE_LLM_API_KEY / AGENTCORE_%s_API_KEY)",
				strings.ToUpper(c.LLM.Provider)))
	}
	if c.LLM.Provider != "anthropic" && c.LLM.Provider != "openai" {
		return agenterrors.New(agenterrors.ConfigInvalid, "validate",
			fmt.Errorf("llm.provider must be \"anthropic\" or \"openai\", got %q", c.LLM.Provider))
	}
	if c.Game.Port <= 0 || c.Game.Port > 65535 {
		return agenterrors.New(agenterrors.ConfigInvalid, "validate",
			fmt.Errorf("game.port %d out of range", c.Game.Port))
	}
	if c.Memory.MaxTokens <= 0 {
		return agenterrors.New(agenterrors.ConfigInvalid, "validate",
			fmt.Errorf("memory.max_tokens must be positive"))
	}
	return nil
}

// Save writes the config to a YAML file. The API key is never persisted;
// callers relying on Save+Load must re-supply it via environment variable.
func Save(path string, cfg *Config) error {
	redacted := *cfg
	redacted.LLM.APIKey = ""
	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
