package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName        string
	AppEnv         string
	AppPort        string
	AllowedOrigins string
	AccessLog      bool

	DatabaseURL  string
	AutoMigrate  bool
	RedisURL     string
	NATSURL      string
	ChannelBase  string
	JWTSecret    string
	SSEKeepAlive time.Duration

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	StatisticsConcurrency  int
	StatisticsFetchTimeout time.Duration
	StatisticsSource       string

	SubmitRateLimit  int
	SubmitRateWindow time.Duration

	LMSBaseURL string
	LMSTimeout time.Duration
	LMSRetries int
	LMSToken   string

	AIProvider   string
	OpenAIAPIKey string
	OpenAIModel  string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// New returns a viper instance bound to EDUNEXA_* environment variables with
// every default registered. Commands that add flags bind them on top of it.
func New() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EDUNEXA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault("app.name", "EduNexa API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.allowed_origins", "*")
	v.SetDefault("app.access_log", false)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("channel.base", "edunexa")
	v.SetDefault("sse.keepalive", "30s")
	v.SetDefault("cloudinary.folder", "edunexa/submissions")
	v.SetDefault("statistics.concurrency", 4)
	v.SetDefault("statistics.fetch_timeout", "15s")
	v.SetDefault("statistics.source", "local")
	v.SetDefault("submit.rate_limit", 10)
	v.SetDefault("submit.rate_window", "1m")
	v.SetDefault("lms.base_url", "http://localhost:5000/api")
	v.SetDefault("lms.timeout", "30s")
	v.SetDefault("lms.retries", 2)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("openai.model", "gpt-4o-mini")

	return v
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	cfg, err := FromViper(New())
	if err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}

// FromViper materialises a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	durations := map[string]time.Duration{}
	for _, key := range []string{"sse.keepalive", "statistics.fetch_timeout", "submit.rate_window", "lms.timeout"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		durations[key] = parsed
	}

	// Per-fetch timeout is bounded to 1s..2m.
	fetchTimeout := durations["statistics.fetch_timeout"]
	if fetchTimeout < time.Second || fetchTimeout > 2*time.Minute {
		return Config{}, fmt.Errorf("invalid statistics.fetch_timeout: %s is outside 1s..2m", fetchTimeout)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		AllowedOrigins:         v.GetString("app.allowed_origins"),
		AccessLog:              v.GetBool("app.access_log"),
		DatabaseURL:            v.GetString("database.url"),
		AutoMigrate:            v.GetBool("database.auto_migrate"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		ChannelBase:            v.GetString("channel.base"),
		JWTSecret:              v.GetString("jwt.secret"),
		SSEKeepAlive:           durations["sse.keepalive"],
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		StatisticsConcurrency:  v.GetInt("statistics.concurrency"),
		StatisticsFetchTimeout: fetchTimeout,
		StatisticsSource:       strings.ToLower(strings.TrimSpace(v.GetString("statistics.source"))),
		SubmitRateLimit:        v.GetInt("submit.rate_limit"),
		SubmitRateWindow:       durations["submit.rate_window"],
		LMSBaseURL:             strings.TrimRight(v.GetString("lms.base_url"), "/"),
		LMSTimeout:             durations["lms.timeout"],
		LMSRetries:             v.GetInt("lms.retries"),
		LMSToken:               v.GetString("lms.token"),
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:           v.GetString("openai.api_key"),
		OpenAIModel:            v.GetString("openai.model"),
	}

	if cfg.StatisticsConcurrency <= 0 {
		cfg.StatisticsConcurrency = 4
	}
	switch cfg.StatisticsSource {
	case "local", "lms":
	default:
		return Config{}, fmt.Errorf("invalid statistics.source %q: expected local or lms", cfg.StatisticsSource)
	}
	if cfg.LMSRetries < 0 {
		cfg.LMSRetries = 0
	}

	return cfg, nil
}
