package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/contact.monitor/internal/contact"
)

// DefaultConfigPath is the path to the example monitor configuration.
const DefaultConfigPath = "config/monitor.defaults.json"

// SerialConfig describes the serial joint state feed. An empty Port disables
// the serial feed.
type SerialConfig struct {
	Port     string `json:"port,omitempty"`
	BaudRate int    `json:"baud_rate,omitempty"`
	DataBits int    `json:"data_bits,omitempty"`
	StopBits int    `json:"stop_bits,omitempty"`
	Parity   string `json:"parity,omitempty"`
}

// MonitorConfig is the root configuration of the contact monitor process.
// Unset fields fall back to the defaults returned by the Get* methods, so
// partial configs are safe.
type MonitorConfig struct {
	// Monitor params
	Namespace       *string  `json:"namespace,omitempty"`
	MonitoredLinks  []string `json:"monitored_links,omitempty"` // empty means every link
	ContactTestType *string  `json:"contact_test_type,omitempty"`
	ContactDistance *float64 `json:"contact_distance,omitempty"`
	JointStateTopic *string  `json:"joint_state_topic,omitempty"`
	PublishMarkers  *bool    `json:"publish_markers,omitempty"`

	// Environment
	EnvironmentFile *string `json:"environment_file,omitempty"`

	// Feeds and listeners
	Serial     *SerialConfig `json:"serial,omitempty"`
	HTTPListen *string       `json:"http_listen,omitempty"`
	GRPCListen *string       `json:"grpc_listen,omitempty"`

	// History
	DBPath           *string `json:"db_path,omitempty"`
	HistoryRetention *string `json:"history_retention,omitempty"` // duration string like "24h"
}

// EmptyMonitorConfig returns a MonitorConfig with all fields unset.
func EmptyMonitorConfig() *MonitorConfig {
	return &MonitorConfig{}
}

// LoadMonitorConfig loads a MonitorConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadMonitorConfig(path string) (*MonitorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMonitorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *MonitorConfig) Validate() error {
	if c.Namespace != nil && strings.Contains(strings.Trim(*c.Namespace, "/"), " ") {
		return fmt.Errorf("namespace must not contain spaces, got %q", *c.Namespace)
	}

	if c.ContactTestType != nil {
		if _, err := contact.ParseTestType(*c.ContactTestType); err != nil {
			return fmt.Errorf("invalid contact_test_type: %w", err)
		}
	}

	if c.ContactDistance != nil && *c.ContactDistance < 0 {
		return fmt.Errorf("contact_distance must be non-negative, got %f", *c.ContactDistance)
	}

	if c.JointStateTopic != nil && !strings.HasPrefix(*c.JointStateTopic, "/") {
		return fmt.Errorf("joint_state_topic must start with '/', got %q", *c.JointStateTopic)
	}

	seen := make(map[string]bool, len(c.MonitoredLinks))
	for _, l := range c.MonitoredLinks {
		if l == "" {
			return fmt.Errorf("monitored_links contains an empty name")
		}
		if seen[l] {
			return fmt.Errorf("monitored_links contains %q twice", l)
		}
		seen[l] = true
	}

	if c.HistoryRetention != nil && *c.HistoryRetention != "" {
		if _, err := time.ParseDuration(*c.HistoryRetention); err != nil {
			return fmt.Errorf("invalid history_retention '%s': %w", *c.HistoryRetention, err)
		}
	}

	return nil
}

// GetNamespace returns the namespace without surrounding slashes.
func (c *MonitorConfig) GetNamespace() string {
	if c.Namespace == nil || strings.Trim(*c.Namespace, "/") == "" {
		return "contact_monitor"
	}
	return strings.Trim(*c.Namespace, "/")
}

// GetContactTestType returns the parsed contact test type or the default.
func (c *MonitorConfig) GetContactTestType() contact.TestType {
	if c.ContactTestType == nil {
		return contact.TestAll
	}
	tt, err := contact.ParseTestType(*c.ContactTestType)
	if err != nil {
		return contact.TestAll // default on parse error
	}
	return tt
}

// GetContactDistance returns the contact_distance value or the default.
func (c *MonitorConfig) GetContactDistance() float64 {
	if c.ContactDistance == nil {
		return 0.1
	}
	return *c.ContactDistance
}

// GetJointStateTopic returns the joint_state_topic value or the default.
func (c *MonitorConfig) GetJointStateTopic() string {
	if c.JointStateTopic == nil || *c.JointStateTopic == "" {
		return "/joint_states"
	}
	return *c.JointStateTopic
}

// GetPublishMarkers returns the publish_markers value or the default.
func (c *MonitorConfig) GetPublishMarkers() bool {
	if c.PublishMarkers == nil {
		return true
	}
	return *c.PublishMarkers
}

// GetEnvironmentFile returns the environment_file value or the default.
func (c *MonitorConfig) GetEnvironmentFile() string {
	if c.EnvironmentFile == nil || *c.EnvironmentFile == "" {
		return "config/two_link_arm.yaml"
	}
	return *c.EnvironmentFile
}

// GetSerial returns the serial feed settings. A zero value disables the feed.
func (c *MonitorConfig) GetSerial() SerialConfig {
	if c.Serial == nil {
		return SerialConfig{}
	}
	return *c.Serial
}

// GetHTTPListen returns the http_listen value or the default.
func (c *MonitorConfig) GetHTTPListen() string {
	if c.HTTPListen == nil || *c.HTTPListen == "" {
		return ":8088"
	}
	return *c.HTTPListen
}

// GetGRPCListen returns the grpc_listen value or the default.
func (c *MonitorConfig) GetGRPCListen() string {
	if c.GRPCListen == nil || *c.GRPCListen == "" {
		return ":50061"
	}
	return *c.GRPCListen
}

// GetDBPath returns the db_path value or the default. An explicit empty
// string disables the history store.
func (c *MonitorConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "contact_monitor.db"
	}
	return *c.DBPath
}

// GetHistoryRetention parses and returns the history retention window.
func (c *MonitorConfig) GetHistoryRetention() time.Duration {
	if c.HistoryRetention == nil || *c.HistoryRetention == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(*c.HistoryRetention)
	if err != nil {
		return 24 * time.Hour // default on parse error
	}
	return d
}
