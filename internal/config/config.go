// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config file.
package config

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/tsireporting/wip-report/pkg/constants"
)

// Configuration holds all configuration for wip-report.
type Configuration struct {
	Server     ServerConfig     `yaml:"server,omitempty"`
	Database   DatabaseConfig   `yaml:"database,omitempty"`
	Auth       AuthConfig       `yaml:"auth,omitempty"`
	Comparison ComparisonConfig `yaml:"comparison,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
}

// ServerConfig holds HTTP server options.
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// AuthConfig holds token signing options.
type AuthConfig struct {
	Secret             string `yaml:"secret,omitempty"`
	TokenExpiryMinutes int    `yaml:"tokenExpiryMinutes,omitempty"`
}

// ComparisonConfig holds the significant-change threshold applied when a
// comparison request does not supply one.
type ComparisonConfig struct {
	ThresholdPercent float64 `yaml:"thresholdPercent,omitempty"`
}

// LoggingConfig holds logging configuration options.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	viper.SetConfigType("yml")
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	return unmarshal()
}

// LoadConfigurationFromReader loads YAML-formatted configuration from the
// given reader.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	viper.SetConfigType("yml")
	setDefaults()

	if err := viper.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}

	return unmarshal()
}

func setDefaults() {
	viper.SetDefault("server.address", constants.DefaultServerAddress)
	viper.SetDefault("database.path", constants.DefaultDatabasePath)
	viper.SetDefault("auth.tokenExpiryMinutes", constants.DefaultTokenExpiryMinutes)
	viper.SetDefault("comparison.thresholdPercent", constants.DefaultThresholdPercent)
}

func unmarshal() (*Configuration, error) {
	var configuration Configuration
	if err := viper.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	return &configuration, nil
}

// ValidateConfiguration checks for hard errors and returns advisory warnings.
func (conf *Configuration) ValidateConfiguration() ([]string, error) {
	if conf.Auth.Secret == "" {
		return nil, fmt.Errorf("auth.secret is required")
	}

	var warnings []string
	if len(conf.Auth.Secret) < 32 {
		warnings = append(warnings, "auth.secret is shorter than 32 characters")
	}
	if conf.Comparison.ThresholdPercent < 0 {
		warnings = append(warnings, fmt.Sprintf("comparison.thresholdPercent %.2f is negative; every compared field will be flagged",
			conf.Comparison.ThresholdPercent))
	}
	return warnings, nil
}

// TokenExpiry returns the configured token lifetime.
func (conf *Configuration) TokenExpiry() time.Duration {
	minutes := conf.Auth.TokenExpiryMinutes
	if minutes <= 0 {
		minutes = constants.DefaultTokenExpiryMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Threshold returns the configured significant-change threshold as a decimal.
func (conf *Configuration) Threshold() decimal.Decimal {
	return decimal.NewFromFloat(conf.Comparison.ThresholdPercent)
}
