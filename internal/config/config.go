package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Reference deployment constants.
const (
	DefaultWindow          = "2s"
	DefaultCooldownWindows = 3
	DefaultPPSLimit        = 400
	DefaultBytesPerPacket  = 500
	DefaultMaxLanes        = 4
	MaxLanesLimit          = 1024
)

var (
	ErrInvalidWindow     = errors.New("window must be a positive whole number of seconds")
	ErrInvalidCooldown   = errors.New("cooldown_windows must be at least 1")
	ErrInvalidLimit      = errors.New("pps_limit and bps_limit must be positive")
	ErrInvalidLanes      = errors.New("max_lanes out of range")
	ErrInvalidLinkType   = errors.New("unknown link_type")
	ErrInvalidDebugLevel = errors.New("debug_level must be between 0 and 3")
)

// EngineConfig holds the detection tunables. They are fixed once the engine starts.
type EngineConfig struct {
	Window          string `yaml:"window"`
	CooldownWindows uint64 `yaml:"cooldown_windows"`
	PPSLimit        uint64 `yaml:"pps_limit"`
	BPSLimit        uint64 `yaml:"bps_limit"`
	MaxLanes        int    `yaml:"max_lanes"`
	LinkType        string `yaml:"link_type"`
	DebugLevel      int    `yaml:"debug_level"`
}

// WindowDuration returns the parsed window. Call Validate first.
func (e EngineConfig) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(e.Window)
	return d
}

// Cooldown is the quiet period required before a dropped category is re-enabled.
func (e EngineConfig) Cooldown() time.Duration {
	return time.Duration(e.CooldownWindows) * e.WindowDuration()
}

// CaptureConfig selects where frames come from and where passed frames go.
type CaptureConfig struct {
	Iface       string `yaml:"iface"`
	PcapFile    string `yaml:"pcap_file"`
	SnapLen     int32  `yaml:"snaplen"`
	Promiscuous bool   `yaml:"promiscuous"`
	BPFFilter   string `yaml:"bpf_filter"`
	ForwardPcap string `yaml:"forward_pcap"`
	LaneQueue   int    `yaml:"lane_queue"`
	// TickInterval closes windows while no frames arrive.
	TickInterval string `yaml:"tick_interval"`
}

// TickDuration returns the idle tick interval, 0 when disabled.
func (c CaptureConfig) TickDuration() time.Duration {
	d, _ := time.ParseDuration(c.TickInterval)
	return d
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NATSConfig holds the NATS connection details.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MQTTConfig holds the MQTT broker details for the mqtt report writer.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// SMTPConfig holds the configuration for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// WriterDef defines a single report writer.
type WriterDef struct {
	Type    string     `yaml:"type"`
	Enabled bool       `yaml:"enabled"`
	Text    TextConfig `yaml:"text"`
}

// TextConfig holds the settings for the text report writer.
type TextConfig struct {
	RootPath string `yaml:"root_path"`
	// Verbose also writes categories that saw no traffic and no transition.
	Verbose bool `yaml:"verbose"`
}

// ReportConfig configures the asynchronous window report pipeline. Each
// writer gets its own queue of QueueSize reports.
type ReportConfig struct {
	QueueSize int         `yaml:"queue_size"`
	Writers   []WriterDef `yaml:"writers"`
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	// JWTSecret enables HS256 bearer-token checks on /api routes when set.
	JWTSecret string `yaml:"jwt_secret"`
}

// HealthConfig holds the gRPC health service settings.
type HealthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig holds log rotation configuration.
type LogConfig struct {
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
	// PacketLogRate caps per-packet diagnostics at debug level 3 (lines per second).
	PacketLogRate float64 `yaml:"packet_log_rate"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Capture    CaptureConfig    `yaml:"capture"`
	Report     ReportConfig     `yaml:"report"`
	API        APIConfig        `yaml:"api"`
	Health     HealthConfig     `yaml:"health"`
	Log        LogConfig        `yaml:"log"`
	NATS       NATSConfig       `yaml:"nats"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	SMTP       SMTPConfig       `yaml:"smtp"`
}

// Default returns a configuration carrying the reference deployment values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Window:          DefaultWindow,
			CooldownWindows: DefaultCooldownWindows,
			PPSLimit:        DefaultPPSLimit,
			BPSLimit:        DefaultPPSLimit * DefaultBytesPerPacket,
			MaxLanes:        DefaultMaxLanes,
			LinkType:        "ethernet",
			DebugLevel:      1,
		},
		Capture: CaptureConfig{
			SnapLen:      1600,
			Promiscuous:  true,
			LaneQueue:    1024,
			TickInterval: "500ms",
		},
		Report: ReportConfig{
			QueueSize: 64,
		},
		API: APIConfig{
			ListenAddr: ":8080",
		},
		Health: HealthConfig{
			ListenAddr: ":50051",
		},
		Log: LogConfig{
			PacketLogRate: 10,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "nsguard.reports",
		},
		MQTT: MQTTConfig{
			Broker: "tcp://127.0.0.1:1883",
			Topic:  "nsguard/reports",
		},
	}
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Fields missing from the file keep their Default values.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the engine tunables.
func (c *Config) Validate() error {
	e := c.Engine
	d, err := time.ParseDuration(e.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if d < time.Second || d%time.Second != 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidWindow, d)
	}
	if e.CooldownWindows < 1 {
		return ErrInvalidCooldown
	}
	if e.PPSLimit == 0 || e.BPSLimit == 0 {
		return ErrInvalidLimit
	}
	if e.MaxLanes < 1 || e.MaxLanes > MaxLanesLimit {
		return fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidLanes, e.MaxLanes, MaxLanesLimit)
	}
	switch e.LinkType {
	case "", "ethernet", "raw", "ipv4", "ipv6":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLinkType, e.LinkType)
	}
	if e.DebugLevel < 0 || e.DebugLevel > 3 {
		return fmt.Errorf("%w: %d", ErrInvalidDebugLevel, e.DebugLevel)
	}
	if c.Capture.TickInterval != "" {
		if _, err := time.ParseDuration(c.Capture.TickInterval); err != nil {
			return fmt.Errorf("invalid tick_interval: %w", err)
		}
	}
	return nil
}
