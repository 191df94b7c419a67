package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/authsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-m string   storage backend: postgres or memory
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-q string   broker backend: kafka or memory
//	-k string   comma-separated Kafka broker addresses
//	-g string   consumer group
//	-l string   log format: json, text or zerolog
//
// Only the flags above are picked out of os.Args (see flagx.FilterArgs) so
// -c/-config and foreign flags do not trip the parser.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-m", "-d", "-s", "-t", "-q", "-k", "-g", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.Storage, "m", config.Storage, "storage backend (postgres|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")

	fs.StringVar(&config.Broker, "q", config.Broker, "broker backend (kafka|memory)")
	brokers := fs.String("k", strings.Join(config.KafkaBrokers, ","), "kafka brokers, comma separated")
	fs.StringVar(&config.ConsumerGroup, "g", config.ConsumerGroup, "consumer group")
	fs.StringVar(&config.LogFormat, "l", config.LogFormat, "log format (json|text|zerolog)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// -t and -k override only when given.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
		case "k":
			config.KafkaBrokers = splitList(*brokers)
		}
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
