package hireproposal

import "time"

// Timeout covers the whole job; the hiring transaction has its own, shorter bound.
type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 15 * time.Second,
	}
}
