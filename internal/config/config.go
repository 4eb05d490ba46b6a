package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	License  LicenseConfig  `yaml:"license"`
	Broker   BrokerConfig   `yaml:"broker"`
	Game     GameConfig     `yaml:"game"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
	PublicURL  string `yaml:"public_url"` // join URL base for player QR codes
	StaticDir  string `yaml:"static_dir"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds admin-console authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// LicenseConfig holds license validation settings
type LicenseConfig struct {
	Path   string `yaml:"path"`
	Secret string `yaml:"secret"`
}

// BrokerConfig holds embedded message broker settings
type BrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GameConfig holds engine timing defaults
type GameConfig struct {
	PresentationDelay time.Duration `yaml:"presentation_delay"` // round intro before first question
	SettleDelay       time.Duration `yaml:"settle_delay"`       // hold after a speed winner announcement
	QuestionDuration  time.Duration `yaml:"question_duration"`  // default per-question timeout
	ShopDuration      time.Duration `yaml:"shop_duration"`      // default shop window
	GameDuration      time.Duration `yaml:"game_duration"`      // whole-game limit when scenario sets none
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/showrunner/showrunner.db"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.Broker.Host == "" {
		cfg.Broker.Host = "127.0.0.1"
	}
	if cfg.Broker.Port == 0 {
		cfg.Broker.Port = 4222
	}
	if cfg.Game.PresentationDelay == 0 {
		cfg.Game.PresentationDelay = 3 * time.Second
	}
	if cfg.Game.SettleDelay == 0 {
		cfg.Game.SettleDelay = 2 * time.Second
	}
	if cfg.Game.QuestionDuration == 0 {
		cfg.Game.QuestionDuration = 30 * time.Second
	}
	if cfg.Game.ShopDuration == 0 {
		cfg.Game.ShopDuration = 60 * time.Second
	}
	if cfg.Game.GameDuration == 0 {
		cfg.Game.GameDuration = 2 * time.Hour
	}
}

// Save writes configuration to a YAML file
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
