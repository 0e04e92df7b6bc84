package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/widdix/s3-getobject-accelerator/internal/progress"
	"gopkg.in/yaml.v3"
)

// Config defines configuration for the s3get CLI.
type Config struct {
	Bucket           string        `yaml:"bucket"`
	Object           string        `yaml:"object"`
	Version          string        `yaml:"version"`
	Concurrency      int           `yaml:"concurrency"`
	PartSize         int64         `yaml:"part_size"` // 0 means native-part mode
	Progress         bool          `yaml:"progress"`
	EndpointHostname string        `yaml:"endpoint_hostname"`
	EndpointPort     string        `yaml:"endpoint_port"`
	Timeouts         TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig mirrors the five C4 deadlines plus the overall request
// timeout (spec §4.4). Zero leaves a deadline at its default: Merge
// ignores zero overrides and accelerator.Download replaces zero with the
// default, so no value disables a deadline.
type TimeoutConfig struct {
	Request    time.Duration `yaml:"request"`
	Resolve    time.Duration `yaml:"resolve"`
	Connection time.Duration `yaml:"connection"`
	Read       time.Duration `yaml:"read"`
	Data       time.Duration `yaml:"data"`
	Write      time.Duration `yaml:"write"`
}

// Default returns a Config with the defaults spec §4.4/§6 name.
func Default() Config {
	return Config{
		Concurrency: 16,
		PartSize:    0,
		Timeouts: TimeoutConfig{
			Request:    300 * time.Second,
			Resolve:    3 * time.Second,
			Connection: 3 * time.Second,
			Read:       300 * time.Second,
			Data:       3 * time.Second,
			Write:      300 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with a string part size.
type yamlConfig struct {
	Bucket           string          `yaml:"bucket"`
	Object           string          `yaml:"object"`
	Version          string          `yaml:"version"`
	Concurrency      int             `yaml:"concurrency"`
	PartSize         string          `yaml:"part_size"`
	Progress         bool            `yaml:"progress"`
	EndpointHostname string          `yaml:"endpoint_hostname"`
	EndpointPort     string          `yaml:"endpoint_port"`
	Timeouts         yamlTimeoutsCfg `yaml:"timeouts"`
}

type yamlTimeoutsCfg struct {
	Request    string `yaml:"request"`
	Resolve    string `yaml:"resolve"`
	Connection string `yaml:"connection"`
	Read       string `yaml:"read"`
	Data       string `yaml:"data"`
	Write      string `yaml:"write"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Bucket != "" {
		cfg.Bucket = yc.Bucket
	}
	if yc.Object != "" {
		cfg.Object = yc.Object
	}
	if yc.Version != "" {
		cfg.Version = yc.Version
	}
	if yc.Concurrency != 0 {
		cfg.Concurrency = yc.Concurrency
	}
	if yc.PartSize != "" {
		size, err := progress.ParseBytes(yc.PartSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse part_size: %w", err)
		}
		cfg.PartSize = size
	}
	cfg.Progress = yc.Progress
	if yc.EndpointHostname != "" {
		cfg.EndpointHostname = yc.EndpointHostname
	}
	if yc.EndpointPort != "" {
		cfg.EndpointPort = yc.EndpointPort
	}

	if err := mergeYAMLDuration(&cfg.Timeouts.Request, "timeouts.request", yc.Timeouts.Request); err != nil {
		return Config{}, err
	}
	if err := mergeYAMLDuration(&cfg.Timeouts.Resolve, "timeouts.resolve", yc.Timeouts.Resolve); err != nil {
		return Config{}, err
	}
	if err := mergeYAMLDuration(&cfg.Timeouts.Connection, "timeouts.connection", yc.Timeouts.Connection); err != nil {
		return Config{}, err
	}
	if err := mergeYAMLDuration(&cfg.Timeouts.Read, "timeouts.read", yc.Timeouts.Read); err != nil {
		return Config{}, err
	}
	if err := mergeYAMLDuration(&cfg.Timeouts.Data, "timeouts.data", yc.Timeouts.Data); err != nil {
		return Config{}, err
	}
	if err := mergeYAMLDuration(&cfg.Timeouts.Write, "timeouts.write", yc.Timeouts.Write); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func mergeYAMLDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	*dst = d
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the S3GET_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("S3GET_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("S3GET_OBJECT"); v != "" {
		c.Object = v
	}
	if v := os.Getenv("S3GET_VERSION"); v != "" {
		c.Version = v
	}
	if v := os.Getenv("S3GET_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse S3GET_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("S3GET_PART_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse S3GET_PART_SIZE: %w", err)
		}
		c.PartSize = size
	}
	if v := os.Getenv("S3GET_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("S3GET_ENDPOINT_HOSTNAME"); v != "" {
		c.EndpointHostname = v
	}
	if v := os.Getenv("S3GET_ENDPOINT_PORT"); v != "" {
		c.EndpointPort = v
	}
	if v := os.Getenv("S3GET_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse S3GET_REQUEST_TIMEOUT: %w", err)
		}
		c.Timeouts.Request = d
	}
	if v := os.Getenv("S3GET_DATA_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse S3GET_DATA_TIMEOUT: %w", err)
		}
		c.Timeouts.Data = d
	}

	return nil
}

// Validate validates the configuration, per spec §6's rejection rules.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("config: bucket is required")
	}
	if c.Object == "" {
		return errors.New("config: object is required")
	}
	if c.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if c.PartSize < 0 {
		return errors.New("config: part_size must be > 0 or 0 for native-part mode")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.Object != "" {
		c.Object = override.Object
	}
	if override.Version != "" {
		c.Version = override.Version
	}
	if override.Concurrency != 0 {
		c.Concurrency = override.Concurrency
	}
	if override.PartSize != 0 {
		c.PartSize = override.PartSize
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.EndpointHostname != "" {
		c.EndpointHostname = override.EndpointHostname
	}
	if override.EndpointPort != "" {
		c.EndpointPort = override.EndpointPort
	}
	if override.Timeouts.Request != 0 {
		c.Timeouts.Request = override.Timeouts.Request
	}
	if override.Timeouts.Resolve != 0 {
		c.Timeouts.Resolve = override.Timeouts.Resolve
	}
	if override.Timeouts.Connection != 0 {
		c.Timeouts.Connection = override.Timeouts.Connection
	}
	if override.Timeouts.Read != 0 {
		c.Timeouts.Read = override.Timeouts.Read
	}
	if override.Timeouts.Data != 0 {
		c.Timeouts.Data = override.Timeouts.Data
	}
	if override.Timeouts.Write != 0 {
		c.Timeouts.Write = override.Timeouts.Write
	}
	return c
}
