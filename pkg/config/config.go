package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Cache      CacheConfig
	Context    ContextConfig
	Validation ValidationConfig
	Metrics    MetricsConfig
	Knowledge  KnowledgeConfig
	Contacts   ContactsConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int

	// AllowedOrigins feeds CORS and the CSP connect-src list.
	AllowedOrigins []string
	Development    bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	BaseURL          string
	Protocol         string
	Model            string
	APIKey           string
	TimeoutSec       int
	StreamTimeoutSec int
	HealthTimeoutSec int
	MaxAttempts      int
	RetryBackoffMs   int
	Candidates       int
	Parallel         bool
}

type CacheConfig struct {
	MaxSize             int
	TTLHours            int
	SimilarityThreshold float64
}

type ContextConfig struct {
	Budget       int
	SoftOverflow float64
}

type ValidationConfig struct {
	MaxRegenerations  int
	MinCriticalLength int
	CriticalKinds     []string
}

type MetricsConfig struct {
	QueueSize     int
	WindowSize    int
	RetentionDays int
}

type KnowledgeConfig struct {
	Path string
}

type ContactsConfig struct {
	FallbackPhones []string
}

type RateLimitConfig struct {
	RequestsPerMinute int
	MaxQueryLength    int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/ksu-assistant")

	viper.SetEnvPrefix("KSU_ASSISTANT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 150)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.allowedOrigins", []string{"*"})
	viper.SetDefault("server.development", false)

	viper.SetDefault("sqlite.path", "./data/assistant.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.baseURL", "http://localhost:11434")
	viper.SetDefault("llm.protocol", "auto")
	viper.SetDefault("llm.model", "gemma2:9b")
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.streamTimeoutSec", 120)
	viper.SetDefault("llm.healthTimeoutSec", 5)
	viper.SetDefault("llm.maxAttempts", 3)
	viper.SetDefault("llm.retryBackoffMs", 1000)
	viper.SetDefault("llm.candidates", 3)
	viper.SetDefault("llm.parallel", false)

	viper.SetDefault("cache.maxSize", 200)
	viper.SetDefault("cache.ttlHours", 24)
	viper.SetDefault("cache.similarityThreshold", 0.7)

	viper.SetDefault("context.budget", 2000)
	viper.SetDefault("context.softOverflow", 0.8)

	viper.SetDefault("validation.maxRegenerations", 2)
	viper.SetDefault("validation.minCriticalLength", 20)
	viper.SetDefault("validation.criticalKinds", []string{"forbidden_entity", "too_short"})

	viper.SetDefault("metrics.queueSize", 256)
	viper.SetDefault("metrics.windowSize", 1000)
	viper.SetDefault("metrics.retentionDays", 90)

	viper.SetDefault("knowledge.path", "./data/knowledge.yaml")
	viper.SetDefault("contacts.fallbackPhones", []string{"+380 552 494375"})

	viper.SetDefault("rateLimit.requestsPerMinute", 30)
	viper.SetDefault("rateLimit.maxQueryLength", 1000)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
