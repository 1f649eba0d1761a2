package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env     string        `yaml:"env" env-default:"prod"`
	Device  DeviceRef     `yaml:"device"`
	Sender  SenderConfig  `yaml:"sender"`
	Buffer  BufferConfig  `yaml:"buffer"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Breaker BreakerConfig `yaml:"breaker"`
	Cache   CacheConfig   `yaml:"cache"`
	Publish PublishConfig `yaml:"publish"`
	Archive ArchiveConfig `yaml:"archive"`
}

type DeviceRef struct {
	ID         string `yaml:"id" env-required:"true"`
	Name       string `yaml:"name" env-required:"true"`
	SourcePath string `yaml:"source_path" env-required:"true"`
}

type SenderConfig struct {
	Enabled bool          `yaml:"enabled" env-default:"false"`
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token" env:"SENDER_TOKEN"`
	Timeout time.Duration `yaml:"timeout" env-default:"30s"`
	Retry   RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env-default:"5"`
	InitialDelay time.Duration `yaml:"initial_delay" env-default:"1s"`
	MaxDelay     time.Duration `yaml:"max_delay" env-default:"60s"`
}

type BufferConfig struct {
	Enabled       bool          `yaml:"enabled" env-default:"true"`
	Path          string        `yaml:"path" env-default:"/var/lib/soilwatch/buffer.db"`
	MaxAge        time.Duration `yaml:"max_age" env-default:"24h"`
	RetryInterval time.Duration `yaml:"retry_interval" env-default:"30s"`
}

type HTTPConfig struct {
	Address        string        `yaml:"address" env-default:":8080"`
	StaleAfter     time.Duration `yaml:"stale_after" env-default:"1m"`
	ExportLimit    int           `yaml:"export_limit" env-default:"10"`
	ExportWindow   time.Duration `yaml:"export_window" env-default:"1m"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" env-default:"info"`
	Format string `yaml:"format" env-default:"json"`
}

type BreakerConfig struct {
	MaxFailures  uint32        `yaml:"max_failures" env-default:"3"`
	ResetTimeout time.Duration `yaml:"reset_timeout" env-default:"30s"`
}

type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" env-default:"false"`
	Addr      string        `yaml:"addr" env-default:"localhost:6379"`
	Password  string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int           `yaml:"db" env-default:"0"`
	KeyPrefix string        `yaml:"key_prefix" env-default:"soilwatch"`
	TTL       time.Duration `yaml:"ttl" env-default:"1h"`
}

type PublishConfig struct {
	Kafka  KafkaConfig  `yaml:"kafka"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	AMQP   AMQPConfig   `yaml:"amqp"`
	PubSub PubSubConfig `yaml:"pubsub"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" env-default:"false"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" env-default:"soilwatch.reports"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Broker   string `yaml:"broker" env-default:"tcp://localhost:1883"`
	ClientID string `yaml:"client_id" env-default:"soilwatch-dashboard"`
	Topic    string `yaml:"topic" env-default:"soilwatch/reports"`
	QoS      byte   `yaml:"qos" env-default:"1"`
	Retained bool   `yaml:"retained" env-default:"true"`
}

type AMQPConfig struct {
	Enabled    bool   `yaml:"enabled" env-default:"false"`
	URL        string `yaml:"url" env:"AMQP_URL"`
	Exchange   string `yaml:"exchange" env-default:"soilwatch.exchange"`
	RoutingKey string `yaml:"routing_key" env-default:"reports.created"`
}

type PubSubConfig struct {
	Enabled         bool   `yaml:"enabled" env-default:"false"`
	ProjectID       string `yaml:"project_id"`
	TopicID         string `yaml:"topic_id" env-default:"soilwatch-reports"`
	CredentialsFile string `yaml:"credentials_file"`
}

type ArchiveConfig struct {
	Enabled  bool          `yaml:"enabled" env-default:"false"`
	Backend  string        `yaml:"backend" env-default:"minio"`
	Interval time.Duration `yaml:"interval" env-default:"1h"`
	Prefix   string        `yaml:"prefix" env-default:"exports"`
	MinIO    MinIOConfig   `yaml:"minio"`
	GCS      GCSConfig     `yaml:"gcs"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" env-default:"localhost:9000"`
	Bucket    string `yaml:"bucket" env-default:"soilwatch"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	Secure    bool   `yaml:"secure" env-default:"false"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

func MustLoad(configPath string) *Config {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}
