package config

import "time"

// Config represents the complete runlet configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Scripts ScriptsConfig `yaml:"scripts"`
	Engine  EngineConfig  `yaml:"engine"`
	History HistoryConfig `yaml:"history,omitempty"`
	API     APIConfig     `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// ScriptsConfig defines where scripts live and how they are executed.
type ScriptsConfig struct {
	Dir             string        `yaml:"dir"`
	Extension       string        `yaml:"extension"`
	Interpreter     string        `yaml:"interpreter"`
	InterpreterArgs []string      `yaml:"interpreter_args,omitempty"`
	ScanInterval    time.Duration `yaml:"scan_interval"`
}

// EngineConfig defines execution engine limits.
type EngineConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	RunTimeout    time.Duration `yaml:"run_timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// HistoryConfig defines run history storage settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen string        `yaml:"listen"`
	Auth   APIAuthConfig `yaml:"auth,omitempty"`
}

// APIAuthConfig defines API authentication settings. An empty api_key
// disables authentication.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "runlet",
			LogLevel: "info",
		},
		Scripts: ScriptsConfig{
			Dir:             "./scripts",
			Extension:       ".py",
			Interpreter:     "python3",
			InterpreterArgs: []string{"-u"},
			ScanInterval:    5 * time.Second,
		},
		Engine: EngineConfig{
			MaxConcurrent: 4,
			RunTimeout:    30 * time.Second,
			CacheTTL:      30 * time.Second,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "./data/history.db",
		},
		API: APIConfig{
			Listen: "0.0.0.0:3000",
		},
	}
}
