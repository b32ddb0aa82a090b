package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a YAML file.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		// Directory provided - look for config.yaml inside
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Apply environment variable interpolation before parsing.
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults merges default values into config where not explicitly set.
func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}

	if cfg.Scripts.Dir == "" {
		cfg.Scripts.Dir = defaults.Scripts.Dir
	}
	if cfg.Scripts.Extension == "" {
		cfg.Scripts.Extension = defaults.Scripts.Extension
	}
	if cfg.Scripts.Interpreter == "" {
		cfg.Scripts.Interpreter = defaults.Scripts.Interpreter
		if cfg.Scripts.InterpreterArgs == nil {
			cfg.Scripts.InterpreterArgs = defaults.Scripts.InterpreterArgs
		}
	}
	if cfg.Scripts.ScanInterval == 0 {
		cfg.Scripts.ScanInterval = defaults.Scripts.ScanInterval
	}

	if cfg.Engine.MaxConcurrent == 0 {
		cfg.Engine.MaxConcurrent = defaults.Engine.MaxConcurrent
	}
	if cfg.Engine.RunTimeout == 0 {
		cfg.Engine.RunTimeout = defaults.Engine.RunTimeout
	}
	if cfg.Engine.CacheTTL == 0 {
		cfg.Engine.CacheTTL = defaults.Engine.CacheTTL
	}

	if cfg.History.Path == "" {
		cfg.History.Path = defaults.History.Path
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Scripts.Dir == "" {
		return fmt.Errorf("scripts.dir is required")
	}
	if !strings.HasPrefix(cfg.Scripts.Extension, ".") {
		return fmt.Errorf("scripts.extension must start with a dot (got %q)", cfg.Scripts.Extension)
	}
	if cfg.Scripts.Interpreter == "" {
		return fmt.Errorf("scripts.interpreter is required")
	}
	if cfg.Scripts.ScanInterval <= 0 {
		return fmt.Errorf("scripts.scan_interval must be positive")
	}

	if cfg.Engine.MaxConcurrent <= 0 {
		return fmt.Errorf("engine.max_concurrent must be positive")
	}
	if cfg.Engine.RunTimeout <= 0 {
		return fmt.Errorf("engine.run_timeout must be positive")
	}
	if cfg.Engine.CacheTTL <= 0 {
		return fmt.Errorf("engine.cache_ttl must be positive")
	}

	if cfg.History.Enabled && cfg.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}

	// Check for unresolved env vars in secrets (security: no placeholders in logs)
	if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
		matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey)
		if len(matches) > 1 {
			return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
		}
		return fmt.Errorf("api.auth.api_key: unresolved environment variable")
	}

	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}
