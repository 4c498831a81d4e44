package config

import (
	"fmt"

	"github.com/mohitkumar/flowfirst/model"
)

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"
const STORAGE_TYPE_POSTGRES StorageType = "postgres"

type Config struct {
	RedisConfig    RedisStorageConfig
	PostgresConfig PostgresStorageConfig
	HttpPort       int
	StorageType    StorageType
	PublicBaseURL  string
	MaxSteps       int
	DefaultPolicy  model.ResiliencePolicy
	AnalyticsFile  string
	LogLevel       string
	WebhookWorkers int
	FlowCacheTTLMs int
}

type RedisStorageConfig struct {
	Addrs     []string
	Password  string
	Namespace string
}

type PostgresStorageConfig struct {
	DSN string
}

// Validate checks the settings that would otherwise only fail at first use.
func (c Config) Validate() error {
	switch c.StorageType {
	case STORAGE_TYPE_INMEM:
	case STORAGE_TYPE_REDIS:
		if len(c.RedisConfig.Addrs) == 0 || len(c.RedisConfig.Addrs[0]) == 0 {
			return fmt.Errorf("redis storage needs at least one address")
		}
	case STORAGE_TYPE_POSTGRES:
		if len(c.PostgresConfig.DSN) == 0 {
			return fmt.Errorf("postgres storage needs a dsn")
		}
	default:
		return fmt.Errorf("unknown storage implementation %q", c.StorageType)
	}
	if c.HttpPort <= 0 {
		return fmt.Errorf("invalid http port %d", c.HttpPort)
	}
	return nil
}
