package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	LLM        LLMConfig        `mapstructure:"llm"`
	TaggingAPI TaggingAPIConfig `mapstructure:"tagging_api"`
	Cache      CacheConfig      `mapstructure:"cache"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// EmbedDispatcher 在 API 进程内同时运行调度循环
	EmbedDispatcher bool `mapstructure:"embed_dispatcher"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type QueueConfig struct {
	ClaimBatchSize int           `mapstructure:"claim_batch_size"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	TickJitter     time.Duration `mapstructure:"tick_jitter"`
	DispatchToken  string        `mapstructure:"dispatch_token"` // 调度触发接口的共享令牌
	RetentionDays  int           `mapstructure:"retention_days"`
	WakeQueue      string        `mapstructure:"wake_queue"`
}

// ScoringConfig 置信度融合常量，默认值见 scoring.DefaultWeights
type ScoringConfig struct {
	DampingFactor          float64 `mapstructure:"damping_factor"`
	BasicInfoWeight        float64 `mapstructure:"basic_info_weight"`
	MaterializedPathWeight float64 `mapstructure:"materialized_path_weight"`
	ContentAnalysisWeight  float64 `mapstructure:"content_analysis_weight"`
	TagKeywordsWeight      float64 `mapstructure:"tag_keywords_weight"`
}

type LLMConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
}

type TaggingAPIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type CacheConfig struct {
	TaxonomyTTL time.Duration `mapstructure:"taxonomy_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("jwt.expire_hours", 24)

	v.SetDefault("queue.claim_batch_size", 30)
	v.SetDefault("queue.tick_interval", time.Minute)
	v.SetDefault("queue.tick_jitter", 2*time.Second)
	v.SetDefault("queue.retention_days", 30)
	v.SetDefault("queue.wake_queue", "autotag:wake")

	v.SetDefault("scoring.damping_factor", 0.8)
	v.SetDefault("scoring.basic_info_weight", 0.70)
	v.SetDefault("scoring.materialized_path_weight", 0.75)
	v.SetDefault("scoring.content_analysis_weight", 0.85)
	v.SetDefault("scoring.tag_keywords_weight", 0.95)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("tagging_api.timeout_seconds", 30)
	v.SetDefault("cache.taxonomy_ttl", 5*time.Minute)
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
