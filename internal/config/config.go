package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"fairytale-server/internal/logger"
	"fairytale-server/internal/utils"
)

// Config структура для хранения всей конфигурации приложения.
type Config struct {
	AppEnv     string `env:"APP_ENV" env-default:"development"`
	HTTPPort   string `env:"HTTP_PORT" env-default:"8080"`
	SecretsDir string `env:"SECRETS_DIR" env-default:"/run/secrets"`

	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
	PushGatewayURL     string        `env:"PUSHGATEWAY_URL" env-default:""`
	PushInterval       time.Duration `env:"PUSHGATEWAY_INTERVAL" env-default:"15s"`
	IntakeRateLimit    uint          `env:"INTAKE_RATE_LIMIT" env-default:"10"`
	IntakeRateWindow   time.Duration `env:"INTAKE_RATE_WINDOW" env-default:"1m"`

	Logger   logger.Config
	Pipeline PipelineConfig
	TextAI   TextAIConfig
	Image    ImageConfig
	Storage  StorageConfig
	RabbitMQ RabbitMQConfig
}

// PipelineConfig - параметры оркестратора и планировщика.
type PipelineConfig struct {
	TextTimeout       time.Duration `env:"PIPELINE_TEXT_TIMEOUT" env-default:"60s"`
	ImageTimeout      time.Duration `env:"PIPELINE_IMAGE_TIMEOUT" env-default:"2m"`
	StoreTimeout      time.Duration `env:"PIPELINE_STORE_TIMEOUT" env-default:"10s"`
	MaxConcurrentRuns int           `env:"PIPELINE_MAX_CONCURRENT_RUNS" env-default:"4"`
	PlaceholderImage  string        `env:"PIPELINE_PLACEHOLDER_IMAGE_URL" env-default:"/images/placeholder.png"`
	ClaimTTL          time.Duration `env:"PIPELINE_CLAIM_TTL" env-default:"30m"`
	ShutdownTimeout   time.Duration `env:"PIPELINE_SHUTDOWN_TIMEOUT" env-default:"30s"`
	Dispatch          string        `env:"PIPELINE_DISPATCH" env-default:"local"` // local или rabbitmq
}

// TextAIConfig - параметры генератора текста.
type TextAIConfig struct {
	// openai или ollama
	ClientType    string        `env:"AI_CLIENT_TYPE" env-default:"openai"`
	BaseURL       string        `env:"AI_BASE_URL" env-default:"https://openrouter.ai/api/v1"`
	Model         string        `env:"AI_MODEL" env-default:"gpt-4o-mini"`
	Timeout       time.Duration `env:"AI_TIMEOUT" env-default:"90s"`
	Temperature   float64       `env:"AI_TEMPERATURE" env-default:"0.8"`
	MaxTokens     int           `env:"AI_MAX_TOKENS" env-default:"2048"`
	MaxSeedTokens int           `env:"AI_MAX_SEED_TOKENS" env-default:"200"`
	APIKey        string
}

// ImageConfig - параметры генератора иллюстраций.
type ImageConfig struct {
	// sana или openai
	Backend        string        `env:"IMAGE_BACKEND" env-default:"sana"`
	SanaBaseURL    string        `env:"SANA_SERVER_BASE_URL" env-default:"http://localhost:8000"`
	SanaTimeout    time.Duration `env:"SANA_SERVER_TIMEOUT" env-default:"120s"`
	Ratio          string        `env:"IMAGE_RATIO" env-default:"3:2"`
	OpenAIBaseURL  string        `env:"IMAGE_OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	OpenAIModel    string        `env:"IMAGE_OPENAI_MODEL" env-default:"dall-e-3"`
	OpenAISize     string        `env:"IMAGE_OPENAI_SIZE" env-default:"1024x1024"`
	MaxAttempts    int           `env:"IMAGE_MAX_ATTEMPTS" env-default:"1"`
	RetryBaseDelay time.Duration `env:"IMAGE_RETRY_BASE_DELAY" env-default:"2s"`
	SavePath       string        `env:"IMAGE_SAVE_PATH" env-default:"./data/images"`
	PublicBaseURL  string        `env:"IMAGE_PUBLIC_BASE_URL" env-default:"http://localhost:8080/images"`
	StyleSuffix    string        `env:"IMAGE_PROMPT_STYLE_SUFFIX" env-default:""`
	APIKey         string
}

// StorageConfig - выбор и параметры хранилища состояния.
type StorageConfig struct {
	// redis, file или postgres
	Backend string `env:"STORAGE_BACKEND" env-default:"file"`

	FileDir string `env:"STORAGE_FILE_DIR" env-default:"./data/stories"`

	RedisAddr   string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisDB     int           `env:"REDIS_DB" env-default:"0"`
	RedisTTL    time.Duration `env:"REDIS_STORY_TTL" env-default:"720h"`
	RedisPrefix string        `env:"REDIS_KEY_PREFIX" env-default:"story:"`
	RedisPass   string

	DBHost        string        `env:"DB_HOST" env-default:"localhost"`
	DBPort        int           `env:"DB_PORT" env-default:"5432"`
	DBUser        string        `env:"DB_USER" env-default:"postgres"`
	DBName        string        `env:"DB_NAME" env-default:"fairytales"`
	DBSSLMode     string        `env:"DB_SSL_MODE" env-default:"disable"`
	DBMaxConns    int           `env:"DB_MAX_CONNECTIONS" env-default:"10"`
	DBIdleTimeout time.Duration `env:"DB_IDLE_TIMEOUT" env-default:"5m"`
	RunMigrations bool          `env:"DB_RUN_MIGRATIONS" env-default:"true"`
	DBPass        string
}

// RabbitMQConfig - параметры подключения к RabbitMQ.
type RabbitMQConfig struct {
	URL          string `env:"RABBITMQ_URL" env-default:""`
	TaskQueue    string `env:"RABBITMQ_TASK_QUEUE" env-default:"story_generation_tasks"`
	StatusQueue  string `env:"RABBITMQ_STATUS_QUEUE" env-default:"story_status_updates"`
	ConsumerName string `env:"RABBITMQ_CONSUMER_NAME" env-default:"fairytale_worker"`
	Prefetch     int    `env:"RABBITMQ_PREFETCH" env-default:"1"`
}

// GetAllowedOrigins разбивает CORSAllowedOrigins по запятым.
func (c *Config) GetAllowedOrigins() []string {
	if strings.TrimSpace(c.CORSAllowedOrigins) == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(c.CORSAllowedOrigins, " ", ""), ",")
}

// DSN возвращает строку подключения к PostgreSQL.
func (s StorageConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.DBUser, s.DBPass, s.DBHost, s.DBPort, s.DBName, s.DBSSLMode)
}

// Load загружает конфигурацию из переменных окружения и .env файла,
// затем читает секреты, нужные выбранным бэкендам.
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if err := cfg.loadSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadSecrets() error {
	var err error
	if strings.EqualFold(c.TextAI.ClientType, "openai") {
		if c.TextAI.APIKey, err = utils.ReadSecretFrom(c.SecretsDir, "ai_api_key"); err != nil {
			return fmt.Errorf("text AI key: %w", err)
		}
	}
	if strings.EqualFold(c.Image.Backend, "openai") {
		c.Image.APIKey, err = utils.ReadSecretFrom(c.SecretsDir, "image_api_key")
		if errors.Is(err, utils.ErrSecretNotFound) {
			// Один ключ на оба сервиса
			c.Image.APIKey, err = utils.ReadSecretFrom(c.SecretsDir, "ai_api_key")
		}
		if err != nil {
			return fmt.Errorf("image AI key: %w", err)
		}
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "postgres":
		if c.Storage.DBPass, err = utils.ReadSecretFrom(c.SecretsDir, "db_password"); err != nil {
			return fmt.Errorf("db password: %w", err)
		}
	case "redis":
		c.Storage.RedisPass, err = utils.ReadSecretFrom(c.SecretsDir, "redis_password")
		if err != nil && !errors.Is(err, utils.ErrSecretNotFound) {
			return fmt.Errorf("redis password: %w", err)
		}
	}
	return nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch strings.ToLower(c.TextAI.ClientType) {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported AI_CLIENT_TYPE %q", c.TextAI.ClientType)
	}
	switch strings.ToLower(c.Image.Backend) {
	case "sana", "openai":
	default:
		return fmt.Errorf("unsupported IMAGE_BACKEND %q", c.Image.Backend)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "redis", "file", "postgres":
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch strings.ToLower(c.Pipeline.Dispatch) {
	case "local":
	case "rabbitmq":
		if c.RabbitMQ.URL == "" {
			return errors.New("RABBITMQ_URL is required when PIPELINE_DISPATCH=rabbitmq")
		}
	default:
		return fmt.Errorf("unsupported PIPELINE_DISPATCH %q", c.Pipeline.Dispatch)
	}
	if c.Pipeline.TextTimeout <= 0 || c.Pipeline.ImageTimeout <= 0 {
		return errors.New("pipeline timeouts must be positive")
	}
	if c.Pipeline.MaxConcurrentRuns <= 0 {
		return errors.New("PIPELINE_MAX_CONCURRENT_RUNS must be positive")
	}
	if c.Image.MaxAttempts <= 0 {
		return errors.New("IMAGE_MAX_ATTEMPTS must be positive")
	}
	return nil
}
