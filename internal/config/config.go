package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"StockSentinel/internal/logger"
	"StockSentinel/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Strategy strategy.Config `yaml:"strategy"`
	Universe struct {
		Instruments  []string `yaml:"instruments"`
		MarketSuffix string   `yaml:"market_suffix" default:".TW"`
	} `yaml:"universe"`
	DataSource struct {
		BaseURL     string        `yaml:"base_url"`
		APIKey      string        `yaml:"api_key"`
		HistoryDays int           `yaml:"history_days" default:"30" validate:"gte=1"`
		RateLimit   float64       `yaml:"rate_limit" default:"5" validate:"gt=0"`
		Timeout     time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"data_source"`
	Valuation struct {
		URL string `yaml:"url" default:"https://openapi.twse.com.tw/v1/exchangeReport/BWIBBU_ALL" validate:"url"`
	} `yaml:"valuation"`
	Calendar struct {
		Timezone        string   `yaml:"timezone" default:"Asia/Taipei"`
		HolidayURL      string   `yaml:"holiday_url" default:"https://data.ntpc.gov.tw/api/datasets/308dcd75-6434-45bc-a95f-584da4fed251/csv/file"`
		Holidays        []string `yaml:"holidays" validate:"dive,datetime=2006-01-02"`
		WorkingHolidays []string `yaml:"working_holidays" default:"[\"軍人節\"]"`
	} `yaml:"calendar"`
	Notify struct {
		Channel        string `yaml:"channel" default:"line" validate:"oneof=line telegram log"`
		Retries        int    `yaml:"retries" default:"3" validate:"gte=0"`
		QuietOnHoliday bool   `yaml:"quiet_on_holiday"`
		Line           struct {
			Token  string `yaml:"token"`
			UserID string `yaml:"user_id"`
			APIURL string `yaml:"api_url" default:"https://api.line.me/v2/bot/message/push"`
		} `yaml:"line"`
		Telegram struct {
			BotToken string `yaml:"bot_token"`
			ChatID   string `yaml:"chat_id"`
			APIURL   string `yaml:"api_url" default:"https://api.telegram.org"`
			Polling  bool   `yaml:"polling"`
		} `yaml:"telegram"`
	} `yaml:"notify"`
	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic" default:"stock-advisories"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl" default:"20h"`
		Prefix   string        `yaml:"prefix" default:"sentinel"`
	} `yaml:"redis"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" default:"data/stock_sentinel.db"`
	} `yaml:"database"`
	Metrics struct {
		PushgatewayURL string `yaml:"pushgateway_url"`
		Job            string `yaml:"job" default:"stock_sentinel"`
		ListenAddr     string `yaml:"listen_addr"`
	} `yaml:"metrics"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron" default:"0 30 14 * * 1-5"`
	} `yaml:"schedule"`
	Concurrency int           `yaml:"concurrency" default:"8" validate:"gte=1"`
	Log         logger.Config `yaml:"log"`
	Proxy       string        `yaml:"proxy"`
}

var validate = validator.New()

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error: defaults plus environment still form a config.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LINE_TOKEN"); v != "" {
		c.Notify.Line.Token = v
	}
	if v := os.Getenv("LINE_USER_ID"); v != "" {
		c.Notify.Line.UserID = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notify.Telegram.ChatID = v
	}
	if v := os.Getenv("NOTIFY_CHANNEL"); v != "" {
		c.Notify.Channel = v
	}
	if v := os.Getenv("VOLUME_MULTIPLIER"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse VOLUME_MULTIPLIER: %w", err)
		}
		c.Strategy.VolumeMultiplier = m
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Universe.Instruments = splitList(v)
	}
	if v := os.Getenv("DATA_SOURCE_BASE_URL"); v != "" {
		c.DataSource.BaseURL = v
	}
	if v := os.Getenv("DATA_SOURCE_API_KEY"); v != "" {
		c.DataSource.APIKey = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		c.Metrics.PushgatewayURL = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		c.Schedule.DailyCron = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	return nil
}

// Validate checks field constraints and the settings each enabled component needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		return fmt.Errorf("calendar.timezone: %w", err)
	}
	switch c.Notify.Channel {
	case "line":
		if c.Notify.Line.Token == "" || c.Notify.Line.UserID == "" {
			return fmt.Errorf("notify.line.token and notify.line.user_id are required for the line channel")
		}
	case "telegram":
		if c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.bot_token and notify.telegram.chat_id are required for the telegram channel")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// Location returns the exchange time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
