package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/camuig/rf-history/internal/analyzer"
)

const (
	envTelegramToken = "RF_HISTORY_TELEGRAM_API"
	envAIKey         = "RF_HISTORY_AI_KEY"
)

type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Storage    StorageConfig    `yaml:"storage"`
	Statements StatementsConfig `yaml:"statements"`
	Grid       GridConfig       `yaml:"grid"`
	AI         AIConfig         `yaml:"ai"`
	Web        WebConfig        `yaml:"web"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	// Debug enables request logging in the bot API client.
	Debug bool `yaml:"debug"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type StatementsConfig struct {
	FTPDir        string `yaml:"ftp_dir"`
	ProcessingDir string `yaml:"processing_dir"`
	Filename      string `yaml:"filename"`
	ScanInterval  string `yaml:"scan_interval"`
	Timezone      string `yaml:"timezone"`
	// DepositPattern overrides the regexp that tells deposits from other
	// positive balance rows.
	DepositPattern string `yaml:"deposit_pattern"`
}

type GridConfig struct {
	StepPips  float64   `yaml:"step_pips"`
	PipSize   float64   `yaml:"pip_size"`
	MaxOrders int       `yaml:"max_orders"`
	Factors   []float64 `yaml:"factors"`
	// Plateau is the multiplier for steps past the Factors table. Zero means
	// the table must cover every step.
	Plateau float64          `yaml:"plateau"`
	LotBase float64          `yaml:"lot_base"`
	Markers analyzer.Markers `yaml:"markers"`
}

type AIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads the YAML config at path. Secrets from the environment, or from a
// .env file next to the working directory, take precedence over the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if v := os.Getenv(envTelegramToken); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv(envAIKey); v != "" {
		cfg.AI.APIKey = v
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "data/rf-history.db"
	}
	if cfg.Statements.FTPDir == "" {
		cfg.Statements.FTPDir = "ftp"
	}
	if cfg.Statements.ProcessingDir == "" {
		cfg.Statements.ProcessingDir = "data/processing"
	}
	if cfg.Statements.Filename == "" {
		cfg.Statements.Filename = "statement.htm"
	}
	if cfg.Statements.ScanInterval == "" {
		cfg.Statements.ScanInterval = "30s"
	}
	if cfg.Statements.Timezone == "" {
		cfg.Statements.Timezone = "UTC"
	}
	if cfg.Statements.DepositPattern == "" {
		cfg.Statements.DepositPattern = analyzer.DefaultDepositPattern.String()
	}

	def := analyzer.DefaultParams()
	if cfg.Grid.StepPips == 0 {
		cfg.Grid.StepPips = def.StepPips
	}
	if cfg.Grid.PipSize == 0 {
		cfg.Grid.PipSize = def.PipSize
	}
	if cfg.Grid.MaxOrders == 0 {
		cfg.Grid.MaxOrders = def.MaxOrders
	}
	if len(cfg.Grid.Factors) == 0 && cfg.Grid.Plateau == 0 {
		cfg.Grid.Plateau = analyzer.DefaultMultiplier
	}
	if cfg.Grid.LotBase == 0 {
		cfg.Grid.LotBase = def.LotBase
	}
	if cfg.Grid.Markers.Start == "" {
		cfg.Grid.Markers.Start = def.Markers.Start
	}
	if cfg.Grid.Markers.Buy == "" {
		cfg.Grid.Markers.Buy = def.Markers.Buy
	}
	if cfg.Grid.Markers.Sell == "" {
		cfg.Grid.Markers.Sell = def.Markers.Sell
	}

	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "deepseek-chat"
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}
}

func (c *Config) Validate() error {
	interval, err := time.ParseDuration(c.Statements.ScanInterval)
	if err != nil {
		return fmt.Errorf("invalid statements.scan_interval %q: %w", c.Statements.ScanInterval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("statements.scan_interval must be positive, got %q", c.Statements.ScanInterval)
	}
	if _, err := time.LoadLocation(c.Statements.Timezone); err != nil {
		return fmt.Errorf("invalid statements.timezone %q: %w", c.Statements.Timezone, err)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled (or set %s)", envTelegramToken)
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required when ai is enabled (or set %s)", envAIKey)
	}
	if err := c.GridParams().Validate(); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	return nil
}

// GridParams builds the analyzer parameters from the grid section.
func (c *Config) GridParams() analyzer.Params {
	return analyzer.Params{
		StepPips:  c.Grid.StepPips,
		PipSize:   c.Grid.PipSize,
		MaxOrders: c.Grid.MaxOrders,
		Schedule:  analyzer.NewSchedule(c.Grid.Factors, c.Grid.Plateau),
		LotBase:   c.Grid.LotBase,
		Markers:   c.Grid.Markers,
	}
}

func (c *Config) ScanInterval() time.Duration {
	d, _ := time.ParseDuration(c.Statements.ScanInterval)
	return d
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Statements.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}
