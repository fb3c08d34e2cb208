package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("gateway port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateHost validates the gateway bind host
func (v *Validator) ValidateHost(host string) error {
	if host == "" || host == "localhost" {
		return nil // All interfaces, or loopback
	}
	if net.ParseIP(host) == nil && strings.ContainsAny(host, " /:") {
		return fmt.Errorf("invalid gateway host: %s", host)
	}
	return nil
}

// ValidateDefaultFile validates the default session file name
func (v *Validator) ValidateDefaultFile(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("store default_file cannot be empty")
	}
	if strings.HasSuffix(name, string(filepath.Separator)) {
		return fmt.Errorf("store default_file must name a file, got %s", name)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate gateway
	if err := v.ValidatePort(cfg.Gateway.Port); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateHost(cfg.Gateway.Host); err != nil {
		errors = append(errors, err)
	}

	// Validate store
	if err := v.ValidateDefaultFile(cfg.Store.DefaultFile); err != nil {
		errors = append(errors, err)
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging max_size must be >= 0"))
	}
	if cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging max_age must be >= 0"))
	}

	return errors
}
