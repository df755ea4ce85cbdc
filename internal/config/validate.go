package config

import "fmt"

// Issue is a single validation problem found in a Config.
type Issue struct {
	Path    string
	Message string
}

var validLevels = map[string]bool{
	"silent": true, "fatal": true, "error": true,
	"warn": true, "info": true, "debug": true, "trace": true,
}

// Validate checks a Config for problems that would prevent serving.
func Validate(cfg *Config) []Issue {
	var issues []Issue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, Issue{
			Path:    "server.port",
			Message: fmt.Sprintf("port %d out of range", cfg.Server.Port),
		})
	}

	switch cfg.Server.Bind {
	case "loopback", "lan", "auto", "custom":
	default:
		issues = append(issues, Issue{
			Path:    "server.bind",
			Message: "bind must be one of loopback, lan, auto, custom",
		})
	}

	if cfg.Auth.JWTSecret == "" {
		issues = append(issues, Issue{
			Path:    "auth.jwtSecret",
			Message: "jwtSecret is required (admin endpoints cannot authenticate without it)",
		})
	}

	switch cfg.Storage.Driver {
	case "sqlite", "memory":
	default:
		issues = append(issues, Issue{
			Path:    "storage.driver",
			Message: "driver must be sqlite or memory",
		})
	}

	if !validLevels[cfg.Logging.Level] {
		issues = append(issues, Issue{
			Path:    "logging.level",
			Message: "unknown log level: " + cfg.Logging.Level,
		})
	}

	if cfg.Logging.Style != "pretty" && cfg.Logging.Style != "json" {
		issues = append(issues, Issue{
			Path:    "logging.style",
			Message: "style must be pretty or json",
		})
	}

	return issues
}
