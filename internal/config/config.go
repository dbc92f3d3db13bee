package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
)

// Defaults applied before the config file and environment.
const (
	DefaultListen        = ":8318"
	DefaultModel         = "openrouter/free"
	DefaultVisionModel   = "nvidia/nemotron-nano-12b-v2-vl:free"
	DefaultMaxTokens     = 2000
	DefaultTimeout       = 60 * time.Second
	DefaultBasePrompt    = "LIMITE ABSOLUTO: 4 frases. PROIBIDO: listas, bullets, enumeracoes, mais de 4 frases. Se a resposta exigir mais, resuma ou pergunte o que o usuario quer saber especificamente. Seja direto. Portugues."
	DefaultSystemPrompt  = "Voce e um assistente de chat prestativo."
	DefaultRoomStorePath = "data/room-settings.db"
	DefaultGhostPrefix   = "whatsapp_"
)

var (
	// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
	ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")
	// ErrInvalidEncryptionKey indicates ENCRYPTION_KEY is not 32 bytes of hex.
	ErrInvalidEncryptionKey = errors.New("encryption key must be 64 hex characters (set `encryption-key` or ENCRYPTION_KEY)")
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath    string        `yaml:"-"`
	Listen        string        `yaml:"listen" env:"LISTEN_ADDR"`
	DatabaseDSN   string        `yaml:"database-dsn" env:"DB_CONNECTION"`
	EncryptionKey string        `yaml:"encryption-key" env:"ENCRYPTION_KEY"`
	Log           LogConfig     `yaml:"log"`
	Models        ModelsConfig  `yaml:"models"`
	LLM           LLMConfig     `yaml:"llm"`
	Prompts       PromptsConfig `yaml:"system-prompts"`
	Bridge        BridgeConfig  `yaml:"bridge"`
	RoomSettings  RoomSettings  `yaml:"room-settings"`
	Bot           BotConfig     `yaml:"bot"`
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // text | json
}

// ModelsConfig holds process-wide model defaults.
type ModelsConfig struct {
	Default string            `yaml:"default" env:"DEFAULT_MODEL"`
	Vision  string            `yaml:"vision" env:"VISION_MODEL"`
	Aliases map[string]string `yaml:"aliases" env:"MODEL_ALIASES"` // extra alias -> model id pairs
}

// LLMConfig tunes upstream calls.
type LLMConfig struct {
	MaxTokens         int           `yaml:"max-tokens" env:"MAX_TOKENS"`
	Timeout           time.Duration `yaml:"timeout" env:"LLM_TIMEOUT"`
	IncludeReasoning  bool          `yaml:"include-reasoning" env:"INCLUDE_REASONING"`
	FallbackAPIKey    string        `yaml:"fallback-api-key" env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string        `yaml:"openrouter-base-url" env:"OPENROUTER_BASE_URL"`
	VisionMarkers     []string      `yaml:"vision-markers" env:"VISION_MARKERS" envSeparator:","`
}

// PromptsConfig holds system prompt defaults.
type PromptsConfig struct {
	Base    string `yaml:"base" env:"BASE_SYSTEM_PROMPT"`
	Default string `yaml:"default" env:"DEFAULT_SYSTEM_PROMPT"`
}

// BridgeConfig points at the WhatsApp bridge database used to map ghosts to phones.
type BridgeConfig struct {
	DSN         string `yaml:"dsn" env:"BRIDGE_DB_CONNECTION"`
	GhostPrefix string `yaml:"ghost-prefix" env:"BRIDGE_GHOST_PREFIX"`
}

// BotConfig guards the endpoints the chat-command process calls.
type BotConfig struct {
	Token string `yaml:"token" env:"BOT_API_TOKEN"`
}

// RoomSettings locates the per-room settings file.
type RoomSettings struct {
	Path string `yaml:"path" env:"ROOM_SETTINGS_PATH"`
}

// Defaults returns a config populated with built-in defaults.
func Defaults() AppConfig {
	return AppConfig{
		Listen:       DefaultListen,
		Log:          LogConfig{Level: "info", Format: "text"},
		Models:       ModelsConfig{Default: DefaultModel, Vision: DefaultVisionModel},
		LLM:          LLMConfig{MaxTokens: DefaultMaxTokens, Timeout: DefaultTimeout},
		Prompts:      PromptsConfig{Base: DefaultBasePrompt, Default: DefaultSystemPrompt},
		Bridge:       BridgeConfig{GhostPrefix: DefaultGhostPrefix},
		RoomSettings: RoomSettings{Path: DefaultRoomStorePath},
	}
}

// Load resolves configuration: defaults, then the YAML file (optional), then
// .env and process environment.
func Load(configPath string) (AppConfig, error) {
	cfg := Defaults()
	cfg.ConfigPath = ResolveConfigPath(configPath)

	data, errRead := os.ReadFile(cfg.ConfigPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return AppConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return AppConfig{}, fmt.Errorf("read config file: %w", errRead)
	}

	_ = godotenv.Load()
	if errEnv := env.Parse(&cfg); errEnv != nil {
		return AppConfig{}, fmt.Errorf("parse environment: %w", errEnv)
	}

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		if dsn, errDSN := LoadDatabaseDSN(cfg.ConfigPath); errDSN == nil {
			cfg.DatabaseDSN = dsn
		}
	}

	cfg.normalize()
	if errValidate := cfg.validate(); errValidate != nil {
		return AppConfig{}, errValidate
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.DatabaseDSN = strings.TrimSpace(c.DatabaseDSN)
	c.EncryptionKey = strings.TrimSpace(c.EncryptionKey)
	c.LLM.FallbackAPIKey = strings.TrimSpace(c.LLM.FallbackAPIKey)
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = DefaultMaxTokens
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(c.Models.Default) == "" {
		c.Models.Default = DefaultModel
	}
	if strings.TrimSpace(c.Models.Vision) == "" {
		c.Models.Vision = DefaultVisionModel
	}
	markers := c.LLM.VisionMarkers[:0]
	for _, m := range c.LLM.VisionMarkers {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	if len(markers) == 0 {
		c.LLM.VisionMarkers = nil
	} else {
		c.LLM.VisionMarkers = markers
	}
}

func (c *AppConfig) validate() error {
	if c.DatabaseDSN == "" {
		return ErrMissingDatabaseDSN
	}
	if key, err := hex.DecodeString(c.EncryptionKey); err != nil || len(key) != 32 {
		return ErrInvalidEncryptionKey
	}
	return nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// LoadDatabaseDSN reads the database DSN from the environment or YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}
