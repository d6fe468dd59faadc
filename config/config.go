// Package config holds runtime configuration for the audit service.
// Defaults are production-safe; main overrides them from environment
// variables.
package config

import (
	"fmt"
	"net"
	"strconv"
)

// DetectionConfig holds the tunable detection parameters.
type DetectionConfig struct {
	GhostContamination      float64 // Expected anomaly fraction for statistical mode
	NameSimilarityThreshold int     // Duplicate name match cutoff, 0-100
	GhostAgeThreshold       int     // Age above which a record is a ghost candidate
	Seed                    int64   // RNG seed for reproducible statistical runs
	EnableStatistical       bool    // Use the isolation forest instead of rules
	PhoneticMatch           bool    // Add phonetic evidence to duplicate scoring
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	URL        string // PostgreSQL connection URL; empty selects SQLite
	SQLitePath string // SQLite database file for the fallback store
}

// Config holds all configuration for the audit service.
type Config struct {
	ListenAddr    string // HTTP listen address
	UploadsDir    string // Directory for uploaded voter rolls
	AuditLogPath  string // Append-only audit trail (JSON lines)
	AdminUser     string
	AdminPassword string
	SentryDSN     string // Empty disables error reporting
	AnalyzeRPS    float64
	AnalyzeBurst  int
	Database      DatabaseConfig
	Detection     DetectionConfig
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:    ":5000",
		UploadsDir:    "uploads",
		AuditLogPath:  "audit_log.jsonl",
		AdminUser:     "admin",
		AdminPassword: "voteguard123",
		AnalyzeRPS:    1,
		AnalyzeBurst:  3,
		Database: DatabaseConfig{
			URL:        "",
			SQLitePath: "voteguard.db",
		},
		Detection: DetectionConfig{
			GhostContamination:      0.05,
			NameSimilarityThreshold: 85,
			GhostAgeThreshold:       110,
			Seed:                    42,
			EnableStatistical:       false,
			PhoneticMatch:           false,
		},
	}
}

// Validate checks the values that would otherwise only fail at serve time.
func (c *Config) Validate() error {
	host, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
	}
	_ = host
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid listen port %q", port)
	}

	d := c.Detection
	if d.GhostContamination <= 0 || d.GhostContamination >= 0.5 {
		return fmt.Errorf("ghost contamination must be in (0, 0.5), got %g", d.GhostContamination)
	}
	if d.NameSimilarityThreshold < 0 || d.NameSimilarityThreshold > 100 {
		return fmt.Errorf("name similarity threshold must be 0-100, got %d", d.NameSimilarityThreshold)
	}
	if d.GhostAgeThreshold <= 0 {
		return fmt.Errorf("ghost age threshold must be positive, got %d", d.GhostAgeThreshold)
	}
	if c.AnalyzeRPS <= 0 || c.AnalyzeBurst < 1 {
		return fmt.Errorf("invalid analyze rate limit: rps=%g burst=%d", c.AnalyzeRPS, c.AnalyzeBurst)
	}
	return nil
}
