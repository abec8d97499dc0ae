// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Stripe                  StripeConfig    `yaml:"stripe"`
	PayPal                  PayPalConfig    `yaml:"paypal"`
	Payment                 PaymentConfig   `yaml:"payment"`
	Checkout                CheckoutConfig  `yaml:"checkout"`
	Scheduler               SchedulerConfig `yaml:"scheduler"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"localhost:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ структура для подключения к брокеру уведомлений.
// Пустой URL означает, что уведомления пишутся напрямую в базу.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// JWTToken структура для проверки jwt-токена внешнего провайдера авторизации
type JWTToken struct {
	JWTSecretKey string `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
}

// StripeConfig настройки Stripe Checkout.
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
}

// Configured сообщает, можно ли создавать сессии оплаты.
func (c StripeConfig) Configured() bool { return c.SecretKey != "" }

// WebhookConfigured сообщает, можно ли проверять подпись вебхука.
func (c StripeConfig) WebhookConfigured() bool { return c.WebhookSecret != "" }

// PayPalConfig настройки PayPal Orders API.
type PayPalConfig struct {
	ClientID  string `yaml:"client_id" env:"PAYPAL_CLIENT_ID"`
	Secret    string `yaml:"secret" env:"PAYPAL_SECRET"`
	APIBase   string `yaml:"api_base" env:"PAYPAL_API_BASE" env-default:"https://api-m.sandbox.paypal.com"`
	WebhookID string `yaml:"webhook_id" env:"PAYPAL_WEBHOOK_ID"`
}

// Configured сообщает, заданы ли учётные данные PayPal.
func (c PayPalConfig) Configured() bool { return c.ClientID != "" && c.Secret != "" }

// WebhookConfigured сообщает, включена ли проверка подписи вебхуков PayPal.
func (c PayPalConfig) WebhookConfigured() bool { return c.Configured() && c.WebhookID != "" }

// PaymentConfig общие параметры расчётов.
type PaymentConfig struct {
	Currency           string  `yaml:"currency" env-default:"usd"`
	PlatformFeePercent float64 `yaml:"platform_fee_percent" env-default:"10"`
}

// CheckoutConfig параметры оформления покупки.
type CheckoutConfig struct {
	PendingTTL time.Duration `yaml:"pending_ttl" env-default:"24h"`
}

// SchedulerConfig расписание фоновых задач.
type SchedulerConfig struct {
	SweepSpec string `yaml:"sweep_spec" env-default:"@every 5m"`
}

// MustLoad функция для загрузки конфига, путь берётся из переменной CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла и дополняет его переменными окружения.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file: %s - does not exist", configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"MigrationsPath: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"  MaxRetries: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Stripe configured: %t\n"+
			"PayPal configured: %t\n"+
			"Payment:\n"+
			"  Currency: %s\n"+
			"  PlatformFeePercent: %.2f\n",
		c.Env,
		c.MigrationsPath,
		c.AddressRedis,
		c.DB,
		c.MaxRetries,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.Stripe.Configured(),
		c.PayPal.Configured(),
		c.Payment.Currency,
		c.Payment.PlatformFeePercent,
	)
}
