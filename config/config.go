package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Airtable  AirtableConfig  `yaml:"airtable"`
	ShipTrace ShipTraceConfig `yaml:"shiptrace"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	ShipmentUpdatedTopicName string `yaml:"shipment_updated_topic_name"`
}

// AirtableConfig: секреты обычно приходят из окружения (.env), yaml-значения
// работают как фолбэк. Если APIKey и BaseID пустые, бэкенд — Postgres.
type AirtableConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	BaseID         string `yaml:"base_id"`
	ShipmentsTable string `yaml:"shipments_table"`
}

type ShipTraceConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	CacheTTLSeconds     int `yaml:"cache_ttl_seconds"`
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds"`

	QueryRateLimit         int `yaml:"query_rate_limit"`
	QueryRateWindowSeconds int `yaml:"query_rate_window_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	// .env при наличии перекрывает уже выставленные переменные окружения —
	// локальная разработка важнее значений, пришедших из оркестратора.
	_ = godotenv.Overload()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if v := os.Getenv("AIRTABLE_API_KEY"); v != "" {
		config.Airtable.APIKey = v
	}
	if v := os.Getenv("AIRTABLE_BASE_ID"); v != "" {
		config.Airtable.BaseID = v
	}
	if v := os.Getenv("AIRTABLE_SHIPMENTS_TABLE"); v != "" {
		config.Airtable.ShipmentsTable = v
	}

	return &config, nil
}
