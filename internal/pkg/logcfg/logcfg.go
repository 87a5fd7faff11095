package logcfg

import (
	"os"

	logs "github.com/danmuck/smplog"
)

// EnvConfigPath names the variable pointing at an smplog TOML file.
const EnvConfigPath = "SESTREAM_LOG_CONFIG"

var candidates = []string{
	"./smplog.config.toml",
	"./config/smplog.config.toml",
}

// Load returns file-backed logging configuration when available, otherwise defaults.
func Load() logs.Config {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}
	for _, path := range candidates {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}
	return logs.DefaultConfig()
}

// Setup loads and applies the logging configuration.
func Setup() {
	logs.Configure(Load())
}
