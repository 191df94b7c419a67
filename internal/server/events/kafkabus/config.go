// Package kafkabus carries account lifecycle events over Kafka using
// segmentio/kafka-go. Each queue maps to one topic; the deletion consumer
// joins a consumer group so offsets survive restarts.
package kafkabus

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/authsync/internal/common"
)

type Config struct {
	Brokers           []string
	GroupID           string
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	Partitions        int
	ReplicationFactor int
}

func (c *Config) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.Partitions <= 0 {
		c.Partitions = 1
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: no kafka brokers configured", common.ErrConfiguration)
	}
	return nil
}
