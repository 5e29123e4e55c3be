// Package config defines the daemon configuration for scanward and the
// loading, defaulting, and validation logic around it.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/scanward/scanward/internal/db"
)

// Config represents the complete daemon configuration
type Config struct {
	// Daemon configuration
	Daemon DaemonConfig `yaml:"daemon" json:"daemon"`

	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Topology mapping configuration
	Topology TopologyConfig `yaml:"topology" json:"topology"`

	// Schedule configuration
	Schedules ScheduleConfig `yaml:"schedules" json:"schedules"`

	// Result store configuration
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Job archive database configuration
	Archive db.Config `yaml:"archive" json:"archive"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DaemonConfig holds daemon-specific settings
type DaemonConfig struct {
	// PID file location
	PIDFile string `yaml:"pid_file" json:"pid_file"`

	// Working directory
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ScanningConfig holds port scan settings
type ScanningConfig struct {
	// Default network to scan when a trigger carries no target
	TargetNetwork string `yaml:"target_network" json:"target_network"`

	// Ports passed to nmap; empty means nmap's default set
	Ports string `yaml:"ports" json:"ports"`

	// Scan type: connect, syn, or version
	ScanType string `yaml:"scan_type" json:"scan_type"`

	// Hard deadline for a single scan job
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Enable service/version detection (-sV)
	EnableServiceDetection bool `yaml:"enable_service_detection" json:"enable_service_detection"`
}

// TopologyConfig holds topology mapping settings
type TopologyConfig struct {
	// Hard deadline for a topology job
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Reverse-DNS enrichment
	DNS DNSConfig `yaml:"dns" json:"dns"`

	// SNMP device identification
	SNMP SNMPConfig `yaml:"snmp" json:"snmp"`
}

// DNSConfig holds reverse-DNS enrichment settings
type DNSConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Resolver address (host:port); empty uses the system resolver from
	// /etc/resolv.conf
	Resolver string `yaml:"resolver" json:"resolver"`

	// Per-query timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// SNMPConfig holds SNMP enrichment settings
type SNMPConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Community string        `yaml:"community" json:"community"`
	Port      uint16        `yaml:"port" json:"port"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// ScheduleConfig holds cron schedule settings
type ScheduleConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Cron expression for periodic port scans
	ScanSchedule string `yaml:"scan_schedule" json:"scan_schedule"`

	// Cron expression for periodic topology mapping
	TopologySchedule string `yaml:"topology_schedule" json:"topology_schedule"`
}

// StorageConfig holds result store settings
type StorageConfig struct {
	// Directory holding scan and topology artifacts
	ResultsDir string `yaml:"results_dir" json:"results_dir"`

	// Number of topology history snapshots to retain
	MaxHistoryFiles int `yaml:"max_history_files" json:"max_history_files"`
}

// APIConfig holds API server settings
type APIConfig struct {
	// Enable API server
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// API key authentication
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`

	// Request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Maximum request size
	MaxRequestSize int64 `yaml:"max_request_size" json:"max_request_size"`
}

// AuthConfig holds API key authentication settings
type AuthConfig struct {
	// Enable API key checks on trigger endpoints
	Enabled bool `yaml:"enabled" json:"enabled"`

	// bcrypt hashes of accepted API keys
	KeyHashes []string `yaml:"key_hashes" json:"key_hashes"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	// Enable CORS
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Allowed origins
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// Allowed methods
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`

	// Allowed headers
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Enable request logging for API
	RequestLogging bool `yaml:"request_logging" json:"request_logging"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			PIDFile:         "/var/run/scanward.pid",
			WorkDir:         "/var/lib/scanward",
			ShutdownTimeout: 30 * time.Second,
		},
		Scanning: ScanningConfig{
			TargetNetwork:          "192.168.1.0/24",
			Ports:                  "",
			ScanType:               "version",
			Timeout:                15 * time.Minute,
			EnableServiceDetection: true,
		},
		Topology: TopologyConfig{
			Timeout: 10 * time.Minute,
			DNS: DNSConfig{
				Enabled:  true,
				Resolver: "",
				Timeout:  2 * time.Second,
			},
			SNMP: SNMPConfig{
				Enabled:   false,
				Community: "public",
				Port:      161,
				Timeout:   2 * time.Second,
			},
		},
		Schedules: ScheduleConfig{
			Enabled:          true,
			ScanSchedule:     "0 2 * * *",
			TopologySchedule: "30 * * * *",
		},
		Storage: StorageConfig{
			ResultsDir:      "/results",
			MaxHistoryFiles: 24,
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       8080,
			Auth: AuthConfig{
				Enabled:   false,
				KeyHashes: nil,
			},
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-API-Key"},
			},
			RequestTimeout: 30 * time.Second,
			MaxRequestSize: 1024 * 1024, // 1MB
		},
		Archive: db.DefaultConfig(),
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			Output:         "stdout",
			RequestLogging: true,
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate scanning configuration
	if c.Scanning.TargetNetwork == "" {
		return fmt.Errorf("scanning target network is required")
	}
	if _, _, err := net.ParseCIDR(c.Scanning.TargetNetwork); err != nil {
		return fmt.Errorf("invalid scanning target network %q: %w", c.Scanning.TargetNetwork, err)
	}
	if c.Scanning.Timeout <= 0 {
		return fmt.Errorf("scan timeout must be positive")
	}

	validScanTypes := map[string]bool{
		"connect": true,
		"syn":     true,
		"version": true,
	}
	if !validScanTypes[c.Scanning.ScanType] {
		return fmt.Errorf("invalid scan type: %s", c.Scanning.ScanType)
	}

	// Validate topology configuration
	if c.Topology.Timeout <= 0 {
		return fmt.Errorf("topology timeout must be positive")
	}

	// Validate schedule configuration. Empty expressions disable the
	// schedule and are allowed.
	if c.Schedules.ScanSchedule != "" {
		if _, err := cron.ParseStandard(c.Schedules.ScanSchedule); err != nil {
			return fmt.Errorf("invalid scan schedule %q: %w", c.Schedules.ScanSchedule, err)
		}
	}
	if c.Schedules.TopologySchedule != "" {
		if _, err := cron.ParseStandard(c.Schedules.TopologySchedule); err != nil {
			return fmt.Errorf("invalid topology schedule %q: %w", c.Schedules.TopologySchedule, err)
		}
	}

	// Validate storage configuration
	if c.Storage.ResultsDir == "" {
		return fmt.Errorf("results directory is required")
	}
	if c.Storage.MaxHistoryFiles < 0 {
		return fmt.Errorf("max history files must not be negative")
	}

	// Validate API configuration
	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			return fmt.Errorf("API port must be between 1 and 65535")
		}
		if c.API.ListenAddr == "" {
			return fmt.Errorf("API listen address is required when API is enabled")
		}
		if c.API.Auth.Enabled && len(c.API.Auth.KeyHashes) == 0 {
			return fmt.Errorf("API auth requires at least one key hash")
		}
	}

	// Validate archive configuration
	if c.Archive.Enabled {
		if c.Archive.Host == "" {
			return fmt.Errorf("archive host is required when archive is enabled")
		}
		if c.Archive.Database == "" {
			return fmt.Errorf("archive database name is required when archive is enabled")
		}
		if c.Archive.Username == "" {
			return fmt.Errorf("archive username is required when archive is enabled")
		}
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// GetArchiveConfig returns the job archive database configuration
func (c *Config) GetArchiveConfig() db.Config {
	return c.Archive
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}

// IsAPIEnabled returns true if API server is enabled
func (c *Config) IsAPIEnabled() bool {
	return c.API.Enabled
}

// GetLogOutput returns the log output destination
func (c *Config) GetLogOutput() string {
	return c.Logging.Output
}
