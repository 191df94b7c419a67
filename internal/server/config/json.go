package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authsync/internal/flagx"
	"github.com/dmitrijs2005/authsync/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling. Durations use
// timex.Duration so a file may say "3h" as well as raw nanoseconds.
type JsonConfig struct {
	HTTPAddr              string         `json:"http_addr"`
	Storage               string         `json:"storage"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenIssuer           string         `json:"token_issuer"`
	TokenAudience         string         `json:"token_audience"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	BcryptCost            int            `json:"bcrypt_cost"`
	Broker                string         `json:"broker"`
	KafkaBrokers          []string       `json:"kafka_brokers"`
	ConsumerGroup         string         `json:"consumer_group"`
	CreatedQueue          string         `json:"created_queue"`
	DeletedQueue          string         `json:"deleted_queue"`
	DatabaseTimeout       timex.Duration `json:"database_timeout"`
	BrokerTimeout         timex.Duration `json:"broker_timeout"`
	PublishTimeout        timex.Duration `json:"publish_timeout"`
	ShutdownTimeout       timex.Duration `json:"shutdown_timeout"`
	LogFormat             string         `json:"log_format"`
}

// parseJson loads configuration values from a JSON file into config.
//
// The file path comes from the -c or -config flag; without it nothing is
// loaded. Only keys present in the file override the current values.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.Storage, c.Storage)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setString(&config.TokenAudience, c.TokenAudience)
	setString(&config.Broker, c.Broker)
	setString(&config.ConsumerGroup, c.ConsumerGroup)
	setString(&config.CreatedQueue, c.CreatedQueue)
	setString(&config.DeletedQueue, c.DeletedQueue)
	setString(&config.LogFormat, c.LogFormat)

	if c.TokenValidityDuration.Duration > 0 {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	if c.DatabaseTimeout.Duration > 0 {
		config.DatabaseTimeout = c.DatabaseTimeout.Duration
	}
	if c.BrokerTimeout.Duration > 0 {
		config.BrokerTimeout = c.BrokerTimeout.Duration
	}
	if c.PublishTimeout.Duration > 0 {
		config.PublishTimeout = c.PublishTimeout.Duration
	}
	if c.ShutdownTimeout.Duration > 0 {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
	if c.BcryptCost > 0 {
		config.BcryptCost = c.BcryptCost
	}
	if len(c.KafkaBrokers) > 0 {
		config.KafkaBrokers = c.KafkaBrokers
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
