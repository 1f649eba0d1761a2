package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// SourceConfig describes where the sensor data lives and how often it is
// polled. It is kept in its own file so one store layout can be shared by
// several dashboard deployments.
type SourceConfig struct {
	Connection ConnectionConfig `yaml:"connection"`
	Polling    PollingConfig    `yaml:"polling"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

type ConnectionConfig struct {
	Adapter         string        `yaml:"adapter" env-default:"firebase"`
	DatabaseURL     string        `yaml:"database_url"`
	CredentialsFile string        `yaml:"credentials_file"`
	AuthToken       string        `yaml:"auth_token" env:"SOURCE_AUTH_TOKEN"`
	HistoryPath     string        `yaml:"history_path" env-default:"/sensorData/history"`
	CurrentPath     string        `yaml:"current_path" env-default:"/sensorData/current"`
	Timeout         time.Duration `yaml:"timeout" env-default:"10s"`
}

type PollingConfig struct {
	Interval time.Duration `yaml:"interval" env-default:"5s"`
	Timeout  time.Duration `yaml:"timeout" env-default:"10s"`
}

type DashboardConfig struct {
	RecentLimit int `yaml:"recent_limit" env-default:"20"`
}

func MustLoadSource(configPath string) *SourceConfig {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("source config file not found: " + configPath)
	}

	var cfg SourceConfig
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("failed to read source config: " + err.Error())
	}

	return &cfg
}
