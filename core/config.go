package core

import "time"

const (
	DefaultInitTimeout    = 5 * time.Second
	DefaultProfileTimeout = 5 * time.Second
)

type Config struct {
	// Timeout budgets for the initialization races.
	InitTimeoutSeconds    int `yaml:"init_timeout_seconds"`
	ProfileTimeoutSeconds int `yaml:"profile_timeout_seconds"`

	// Crypto configuration
	Crypto CryptoConfig `yaml:"crypto"`
}

type CryptoConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // 32 bytes, AES-256
}

func (c *Config) InitTimeout() time.Duration {
	if c == nil || c.InitTimeoutSeconds <= 0 {
		return DefaultInitTimeout
	}
	return time.Duration(c.InitTimeoutSeconds) * time.Second
}

func (c *Config) ProfileTimeout() time.Duration {
	if c == nil || c.ProfileTimeoutSeconds <= 0 {
		return DefaultProfileTimeout
	}
	return time.Duration(c.ProfileTimeoutSeconds) * time.Second
}
