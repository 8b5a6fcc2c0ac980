// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
// 它在进程启动时构造一次，并通过构造函数注入到各个组件中。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	VectorStore   VectorStoreConfig   `mapstructure:"vectorstore"`
	Collections   CollectionsConfig   `mapstructure:"collections"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Vision        VisionConfig        `mapstructure:"vision"`
	Generation    GenerationConfig    `mapstructure:"generation"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	Mode          string        `mapstructure:"mode"`
	QueryTimeout  time.Duration `mapstructure:"query_timeout"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	MaxQueryLen   int           `mapstructure:"max_query_length"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// VectorStoreConfig 选择向量集合的后端实现。
type VectorStoreConfig struct {
	Backend     string `mapstructure:"backend"` // elasticsearch | pgvector | memory
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Dimensions  int    `mapstructure:"dimensions"`
}

// CollectionsConfig 存储三类内容各自的集合（索引/表）名称。
type CollectionsConfig struct {
	Text  string `mapstructure:"text"`
	Image string `mapstructure:"image"`
	Table string `mapstructure:"table"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ImageBucket     string `mapstructure:"image_bucket"`
	DocumentBucket  string `mapstructure:"document_bucket"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// VisionConfig 配置查询时的实时图像分析。
type VisionConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Model        string        `mapstructure:"model"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// GenerationConfig 存储回答生成的默认值。
type GenerationConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
	DefaultMode     string `mapstructure:"default_mode"`
}

// Load 读取 .env（可选）与 YAML 配置文件，环境变量优先于文件中的值。
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad 与 Load 相同，失败时 panic，供 main 使用。
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.query_timeout", 3*time.Minute)
	v.SetDefault("server.upload_timeout", 10*time.Minute)
	v.SetDefault("server.max_query_length", 1000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.mysql.max_open_conns", 100)
	v.SetDefault("kafka.group_id", "multimodal-rag-go-ingest")
	v.SetDefault("vectorstore.backend", "elasticsearch")
	v.SetDefault("vectorstore.dimensions", 1536)
	v.SetDefault("collections.text", "documents_text")
	v.SetDefault("collections.image", "documents_images")
	v.SetDefault("collections.table", "documents_tables")
	v.SetDefault("llm.generation.temperature", 0.7)
	v.SetDefault("llm.generation.max_tokens", 2000)
	v.SetDefault("vision.enabled", true)
	v.SetDefault("vision.temperature", 0.3)
	v.SetDefault("vision.max_tokens", 1000)
	v.SetDefault("vision.fetch_timeout", 10*time.Second)
	v.SetDefault("vision.cache_ttl", 24*time.Hour)
	v.SetDefault("generation.default_language", "Indonesian")
	v.SetDefault("generation.default_mode", "simple")
}

// Validate 检查无法在运行时恢复的配置错误。
func (c *Config) Validate() error {
	switch c.VectorStore.Backend {
	case "elasticsearch", "pgvector", "memory":
	default:
		return fmt.Errorf("未知的向量存储后端: %q", c.VectorStore.Backend)
	}
	if c.VectorStore.Dimensions <= 0 {
		return errors.New("vectorstore.dimensions 必须为正数")
	}
	if c.VectorStore.Backend == "pgvector" && c.VectorStore.PostgresDSN == "" {
		return errors.New("pgvector 后端需要配置 vectorstore.postgres_dsn")
	}
	switch strings.ToLower(c.Generation.DefaultLanguage) {
	case "indonesian", "english":
	default:
		return fmt.Errorf("不支持的回答语言: %q", c.Generation.DefaultLanguage)
	}
	return nil
}
