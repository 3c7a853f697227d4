package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"StageSentinel/internal/model"
)

const (
	defaultKISBaseURL       = "https://openapi.koreainvestment.com:9443"
	defaultToleranceMinutes = 2
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider string `yaml:"provider"` // kis | yahoo | mock
	} `yaml:"data_source"`
	KIS struct {
		BaseURL                  string  `yaml:"base_url"`
		AppKey                   string  `yaml:"app_key"`
		AppSecret                string  `yaml:"app_secret"`
		RequestsPerSecond        float64 `yaml:"requests_per_second"`
		TokenSafetyMarginMinutes int     `yaml:"token_safety_margin_minutes"`
	} `yaml:"kis"`
	Strategy model.Settings `yaml:"strategy"`
	Dedup    struct {
		WindowMinutes    int  `yaml:"window_minutes"`
		DailyIdempotency bool `yaml:"daily_idempotency"`
	} `yaml:"dedup"`
	Dispatch struct {
		LookbackMinutes int `yaml:"lookback_minutes"`
	} `yaml:"dispatch"`
	Schedule struct {
		CheckCron     string `yaml:"check_cron"`
		DispatchCron  string `yaml:"dispatch_cron"`
		RebalanceCron string `yaml:"rebalance_cron"`
	} `yaml:"schedule"`
	Database struct {
		Driver     string `yaml:"driver"` // sqlite | postgres | memory
		SQLitePath string `yaml:"sqlite_path"`
		DSN        string `yaml:"dsn"`
	} `yaml:"database"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	SettingsFile string `yaml:"settings_file"`
	Proxy        string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// tolerance 0 is valid, so its default is set before decoding
	cfg.Strategy.ToleranceMinutes = defaultToleranceMinutes

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		cfg.KIS.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		cfg.KIS.AppSecret = v
	}
	if v := os.Getenv("KIS_BASE_URL"); v != "" {
		cfg.KIS.BaseURL = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
		if cfg.Database.Driver == "" {
			cfg.Database.Driver = "postgres"
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		if c.KIS.AppKey != "" {
			c.DataSource.Provider = "kis"
		} else {
			c.DataSource.Provider = "yahoo"
		}
	}
	if c.KIS.BaseURL == "" {
		c.KIS.BaseURL = defaultKISBaseURL
	}
	if c.KIS.RequestsPerSecond == 0 {
		c.KIS.RequestsPerSecond = 15
	}
	if c.KIS.TokenSafetyMarginMinutes == 0 {
		c.KIS.TokenSafetyMarginMinutes = 5
	}

	s := &c.Strategy
	if s.MainSymbol == "" {
		s.MainSymbol = "069500"
	}
	if s.RSIPeriod == 0 {
		s.RSIPeriod = 14
	}
	if s.SMAWindow == 0 {
		s.SMAWindow = 20
	}
	if len(s.BuyLevels) == 0 && len(s.StageAmounts) == 0 {
		s.BuyLevels = []float64{43, 36, 30}
		s.StageAmounts = []float64{1000000, 2000000, 3000000}
	}
	if len(s.CheckTimes) == 0 {
		s.CheckTimes = []string{"10:30", "14:30"}
	}
	if s.Timezone == "" {
		s.Timezone = "Asia/Seoul"
	}
	if len(s.Basket) == 0 {
		s.Basket = []model.BasketEntry{{Symbol: s.MainSymbol, Weight: 1}}
	}

	if c.Dedup.WindowMinutes == 0 {
		c.Dedup.WindowMinutes = 30
	}
	if c.Dispatch.LookbackMinutes == 0 {
		c.Dispatch.LookbackMinutes = 30
	}
	if c.Schedule.CheckCron == "" {
		c.Schedule.CheckCron = "0 * 9-15 * * 1-5"
	}
	if c.Schedule.DispatchCron == "" {
		c.Schedule.DispatchCron = "15 * * * * *"
	}
	if c.Schedule.RebalanceCron == "" {
		c.Schedule.RebalanceCron = "0 0 10 * * *"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/stage_sentinel.db"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "stage-alerts"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	switch c.DataSource.Provider {
	case "kis":
		if c.KIS.AppKey == "" || c.KIS.AppSecret == "" {
			return fmt.Errorf("kis.app_key and kis.app_secret are required for the kis provider")
		}
	case "yahoo", "mock":
	default:
		return fmt.Errorf("data_source.provider %q is not supported", c.DataSource.Provider)
	}
	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Dedup.WindowMinutes < 0 || c.Dispatch.LookbackMinutes < 0 {
		return fmt.Errorf("dedup.window_minutes and dispatch.lookback_minutes must not be negative")
	}
	if err := ValidateSettings(c.Strategy); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	return nil
}
