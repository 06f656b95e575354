package types

import "time"

type DLQRetryConfig struct {
	BatchSize      int           `json:"batch_size"`
	RetryInterval  time.Duration `json:"retry_interval"`
	MaxRetryCount  int           `json:"max_retry_count"`
	BackoffFactor  float64       `json:"backoff_factor"`
	DatabaseName   string        `json:"database_name"`
	CollectionName string        `json:"collection_name"`
}

func (c DLQRetryConfig) WithDefaults() DLQRetryConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Minute
	}
	if c.MaxRetryCount <= 0 {
		c.MaxRetryCount = 5
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 2
	}
	if c.DatabaseName == "" {
		c.DatabaseName = "fisioflow"
	}
	if c.CollectionName == "" {
		c.CollectionName = "dead_letter_jobs"
	}
	return c
}
