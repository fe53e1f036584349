package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/DevRickLin/feishu-market-bot/internal/biz/domain"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// Store configuration
	Store StoreConfig

	// Scheduler and auto-post configuration
	AutoPost AutoPostConfig

	// Vision configuration (optional)
	Vision VisionConfig

	// AMQP configuration (optional)
	Events EventsConfig

	// Admin API configuration
	API APIConfig

	// Catalog loaded from YAML
	Catalog *domain.Catalog

	// Location used to interpret user-entered schedule times
	Location *time.Location

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string

	// ChannelChatID is the group chat listings are published to
	ChannelChatID string

	// AdminOpenID receives Contact Us messages
	AdminOpenID string
	AdminName   string

	// PostLinkTemplate builds the View Post link, %s is the message id
	PostLinkTemplate string
}

// StoreConfig contains persistence configuration
type StoreConfig struct {
	DBPath      string
	ImageDir    string
	IdleMinutes int
}

// AutoPostConfig contains sweep configuration
type AutoPostConfig struct {
	Enabled           bool
	IntervalHours     int
	FirstDelaySeconds int
	Limit             int
	DelaySeconds      int
	RetryAfterMinutes int
}

// VisionConfig contains image classifier configuration
type VisionConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	UnsafeThreshold float64
}

// EventsConfig contains AMQP configuration
type EventsConfig struct {
	URL      string
	Exchange string
}

// APIConfig contains admin API configuration
type APIConfig struct {
	Port int
	URL  string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Database path
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".feishu-market", "market.db")
	}

	imageDir := os.Getenv("IMAGE_DIR")
	if imageDir == "" {
		imageDir = filepath.Join(filepath.Dir(dbPath), "images")
	}

	loc := time.Local
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &ConfigError{Field: "TIMEZONE", Message: err.Error()}
		}
		loc = l
	}

	catalog, err := LoadCatalog(os.Getenv("CATALOG_PATH"))
	if err != nil {
		return nil, err
	}

	apiPort := envInt("API_PORT", 9877)
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:" + strconv.Itoa(apiPort)
	}

	exchange := os.Getenv("AMQP_EXCHANGE")
	if exchange == "" {
		exchange = "market.events"
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:            os.Getenv("FEISHU_APP_ID"),
			AppSecret:        os.Getenv("FEISHU_APP_SECRET"),
			ChannelChatID:    os.Getenv("CHANNEL_CHAT_ID"),
			AdminOpenID:      os.Getenv("ADMIN_OPEN_ID"),
			AdminName:        os.Getenv("ADMIN_NAME"),
			PostLinkTemplate: os.Getenv("POST_LINK_TEMPLATE"),
		},
		Store: StoreConfig{
			DBPath:      dbPath,
			ImageDir:    imageDir,
			IdleMinutes: envInt("SESSION_IDLE_MINUTES", 24*60),
		},
		AutoPost: AutoPostConfig{
			Enabled:           envBool("AUTO_POST_ENABLED", true),
			IntervalHours:     envInt("AUTO_POST_INTERVAL_HOURS", 6),
			FirstDelaySeconds: envInt("AUTO_POST_FIRST_DELAY_SECONDS", 60),
			Limit:             envInt("AUTO_POST_LIMIT", 1),
			DelaySeconds:      envInt("AUTO_POST_DELAY_SECONDS", 2),
			RetryAfterMinutes: envInt("AUTO_POST_RETRY_AFTER_MINUTES", 6*60),
		},
		Vision: VisionConfig{
			APIKey:          os.Getenv("VISION_API_KEY"),
			BaseURL:         os.Getenv("VISION_BASE_URL"),
			Model:           os.Getenv("VISION_MODEL"),
			UnsafeThreshold: envFloat("UNSAFE_THRESHOLD", 0.6),
		},
		Events: EventsConfig{
			URL:      os.Getenv("AMQP_URL"),
			Exchange: exchange,
		},
		API: APIConfig{
			Port: apiPort,
			URL:  apiURL,
		},
		Catalog:  catalog,
		Location: loc,
		Debug:    os.Getenv("DEBUG") == "true",
	}, nil
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

// SessionIdleTimeout converts the idle setting to a duration
func (c *StoreConfig) SessionIdleTimeout() time.Duration {
	return time.Duration(c.IdleMinutes) * time.Minute
}

// Interval returns the sweep interval
func (c *AutoPostConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// FirstDelay returns the delay before the first sweep
func (c *AutoPostConfig) FirstDelay() time.Duration {
	return time.Duration(c.FirstDelaySeconds) * time.Second
}

// Delay returns the pause between publications of one sweep
func (c *AutoPostConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// RetryAfter returns how long a failed candidate is skipped
func (c *AutoPostConfig) RetryAfter() time.Duration {
	return time.Duration(c.RetryAfterMinutes) * time.Minute
}

// Validate validates the configuration needed to serve the bot
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if c.Feishu.ChannelChatID == "" {
		return &ConfigError{Field: "CHANNEL_CHAT_ID", Message: "required"}
	}
	if c.AutoPost.Enabled && c.AutoPost.IntervalHours <= 0 {
		return &ConfigError{Field: "AUTO_POST_INTERVAL_HOURS", Message: "must be positive"}
	}
	if c.AutoPost.Limit <= 0 {
		return &ConfigError{Field: "AUTO_POST_LIMIT", Message: "must be positive"}
	}
	if c.Vision.UnsafeThreshold < 0 || c.Vision.UnsafeThreshold > 1 {
		return &ConfigError{Field: "UNSAFE_THRESHOLD", Message: "must be within [0, 1]"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
