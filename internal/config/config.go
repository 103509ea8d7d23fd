package config

import (
	"cadence/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	} `yaml:"http"`

	Metrics struct {
		Addr string `yaml:"addr" env:"METRICS_ADDR" env-default:":9091"`
	} `yaml:"metrics"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
	} `yaml:"postgres"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
		Region    string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	} `yaml:"s3"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	} `yaml:"redis"`

	API struct {
		// EnqueueRatePerMinute caps how many analysis runs one API
		// instance will enqueue per minute.
		EnqueueRatePerMinute int `yaml:"enqueue_rate_per_minute" env:"API_ENQUEUE_RATE" env-default:"60"`
	} `yaml:"api"`
}

func LoadConfig() (*Config, error) {
	// Load .env file
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadConfig("configs/config.yaml", &cfg); err != nil {
		return nil, err
	}

	if err := cleanenv.UpdateEnv(&cfg); err != nil {
		return nil, err
	}

	logger.Info("Config loaded successfully")
	return &cfg, nil
}
