package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for hifilink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Database  DatabaseConfig  `yaml:"database"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	IR        IRConfig        `yaml:"ir"`
	Capture   CaptureConfig   `yaml:"capture"`
	Queue     QueueConfig     `yaml:"queue"`
	Timers    TimersConfig    `yaml:"timers"`
	Audit     AuditConfig     `yaml:"audit"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// DeviceConfig identifies this hub.
type DeviceConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HardwareConfig names the kernel devices the signal driver talks to.
type HardwareConfig struct {
	// IRTxDevice is the LIRC transmit character device (e.g. /dev/lirc0).
	IRTxDevice string `yaml:"ir_tx_device"`

	// IRRxDevice is the LIRC receive character device used when learning.
	IRRxDevice string `yaml:"ir_rx_device"`

	// GPIOChip is the GPIO character device name for the Kenwood lines and LED.
	GPIOChip string `yaml:"gpio_chip"`

	// StatusLEDPin is the line offset of the status LED. Negative disables it.
	StatusLEDPin int `yaml:"status_led_pin"`

	// StatusLEDActiveLow inverts the LED line.
	StatusLEDActiveLow bool `yaml:"status_led_active_low"`
}

// IRConfig holds carrier defaults for the pulse-train protocols.
type IRConfig struct {
	// TxFreq is the global default carrier frequency in Hz.
	TxFreq int `yaml:"tx_freq"`

	// SharedToggle keeps one toggle bit for all learned-IR devices instead of one per device.
	SharedToggle bool `yaml:"shared_toggle"`
}

// CaptureConfig tunes the IR learn capture window.
type CaptureConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	GapUS          int `yaml:"gap_us"`
	MinEdges       int `yaml:"min_edges"`
}

// QueueConfig sizes the command queue.
type QueueConfig struct {
	Capacity       int `yaml:"capacity"`
	IdleIntervalMS int `yaml:"idle_interval_ms"`
}

// TimersConfig controls the timer scheduler.
type TimersConfig struct {
	Enabled        bool `yaml:"enabled"`
	TickMS         int  `yaml:"tick_ms"`
	DefaultDelayMS int  `yaml:"default_delay_ms"`
}

// AuditConfig controls the transmission and change audit log.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// RetentionDays prunes older entries. Zero keeps them forever.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled        bool                `yaml:"enabled"`
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix    string              `yaml:"topic_prefix"`
	HealthInterval int                 `yaml:"health_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Sizes are in megabytes, ages in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains API authentication settings.
// With neither an API key nor a JWT secret set, the API is open.
type SecurityConfig struct {
	APIKey string    `yaml:"api_key"`
	JWT    JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HIFILINK_SECTION_KEY
// For example: HIFILINK_DATABASE_PATH, HIFILINK_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with defaults only.
// Used by Load as the base layer and by the CLI when no file exists.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name: "hifi-link",
		},
		Database: DatabaseConfig{
			Path:        "./data/hifilink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Hardware: HardwareConfig{
			IRTxDevice:   "/dev/lirc0",
			IRRxDevice:   "/dev/lirc1",
			GPIOChip:     "gpiochip0",
			StatusLEDPin: -1,
		},
		IR: IRConfig{
			TxFreq: 36000,
		},
		Capture: CaptureConfig{
			TimeoutSeconds: 10,
			GapUS:          100000,
			MinEdges:       8,
		},
		Queue: QueueConfig{
			Capacity:       64,
			IdleIntervalMS: 20,
		},
		Timers: TimersConfig{
			Enabled:        true,
			TickMS:         1000,
			DefaultDelayMS: 1000,
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hifilink",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix:    "hifilink",
			HealthInterval: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/hifilink.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HIFILINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HIFILINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Hardware
	if v := os.Getenv("HIFILINK_IR_TX_DEVICE"); v != "" {
		cfg.Hardware.IRTxDevice = v
	}
	if v := os.Getenv("HIFILINK_IR_RX_DEVICE"); v != "" {
		cfg.Hardware.IRRxDevice = v
	}
	if v := os.Getenv("HIFILINK_GPIO_CHIP"); v != "" {
		cfg.Hardware.GPIOChip = v
	}
	if v, ok := envInt("HIFILINK_IR_TX_FREQ"); ok {
		cfg.IR.TxFreq = v
	}

	// MQTT
	if v := os.Getenv("HIFILINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HIFILINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HIFILINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("HIFILINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt("HIFILINK_API_PORT"); ok {
		cfg.API.Port = v
	}

	// InfluxDB
	if v := os.Getenv("HIFILINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("HIFILINK_API_KEY"); v != "" {
		cfg.Security.APIKey = v
	}
	if v := os.Getenv("HIFILINK_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// envInt reads an integer environment variable. Unparseable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.IR.TxFreq <= 0 {
		errs = append(errs, "ir.tx_freq must be positive")
	}

	if c.Queue.Capacity < 1 {
		errs = append(errs, "queue.capacity must be at least 1")
	}

	if c.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// A short HMAC secret makes bearer tokens forgeable.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Redacted returns a copy with credentials blanked, safe to expose over the API.
func (c *Config) Redacted() Config {
	out := *c
	const mask = "********"
	if out.MQTT.Auth.Password != "" {
		out.MQTT.Auth.Password = mask
	}
	if out.InfluxDB.Token != "" {
		out.InfluxDB.Token = mask
	}
	if out.Security.APIKey != "" {
		out.Security.APIKey = mask
	}
	if out.Security.JWT.Secret != "" {
		out.Security.JWT.Secret = mask
	}
	return out
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// CaptureTimeout returns the learn capture window as a Duration.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.TimeoutSeconds) * time.Second
}
