// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	Auth                    `yaml:"auth"`
	Stripe                  `yaml:"stripe"`
	Credits                 `yaml:"credits"`
	Generator               `yaml:"generator"`
	S3                      `yaml:"s3"`

	RabbitMQURL        string        `yaml:"rabbitmq_url"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay" env-default:"5s"`

	SMTPHost string `yaml:"smtp_host"`
	SMTPPort string `yaml:"smtp_port" env-default:"587"`
	SMTPUser string `yaml:"smtp_user"`
	SMTPPass string `yaml:"smtp_pass" env:"SMTP_PASS"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// Auth структура для проверки токенов Supabase
type Auth struct {
	SupabaseJWTSecret string `yaml:"supabase_jwt_secret" env:"SUPABASE_JWT_SECRET"`
}

// Stripe структура для настройки платёжного провайдера
type Stripe struct {
	SecretKey       string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret   string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	SuccessURL      string `yaml:"success_url"`
	CancelURL       string `yaml:"cancel_url"`
	PortalReturnURL string `yaml:"portal_return_url"`
}

// Credits структура для настройки тарификации генерации
type Credits struct {
	CostPerImage  int `yaml:"cost_per_image" env-default:"5"`
	DefaultImages int `yaml:"default_images" env-default:"1"`
}

// Generator структура для настройки клиента генерации изображений
type Generator struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key" env:"GENERATOR_API_KEY"`
	Model            string        `yaml:"model" env-default:"nano-banana-pro"`
	TimeoutGenerator time.Duration `yaml:"timeout" env-default:"5m"`
}

// S3 структура для настройки объектного хранилища
type S3 struct {
	Endpoint     string        `yaml:"endpoint"`
	Region       string        `yaml:"region"`
	AccessKey    string        `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey    string        `yaml:"secret_key" env:"S3_SECRET_KEY"`
	Bucket       string        `yaml:"bucket"`
	UsePathStyle bool          `yaml:"use_path_style"`
	PresignTTL   time.Duration `yaml:"presign_ttl" env-default:"15m"`
}

// MustLoad функция для загрузки конфига, возвращает конфиг, сгенерированный из config/config.go
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
