package config

import (
	"github.com/caarlos0/env/v11"
)

// parseEnv overlays AUTHSYNC_* environment variables onto config. Unset
// variables leave the current value alone. A malformed value panics, the
// same way a broken JSON file does.
func parseEnv(config *Config) {
	if err := env.Parse(config); err != nil {
		panic(err)
	}
}
