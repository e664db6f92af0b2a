package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}
	if cfg.Engine.WindowDuration() != 2*time.Second {
		t.Errorf("Expected 2s window, got %s", cfg.Engine.WindowDuration())
	}
	if cfg.Engine.Cooldown() != 6*time.Second {
		t.Errorf("Expected 6s cooldown, got %s", cfg.Engine.Cooldown())
	}
	if cfg.Engine.BPSLimit != 200000 {
		t.Errorf("Expected byte limit 200000, got %d", cfg.Engine.BPSLimit)
	}
	if cfg.Capture.TickDuration() != 500*time.Millisecond {
		t.Errorf("Expected 500ms tick, got %s", cfg.Capture.TickDuration())
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  window: 5s
  pps_limit: 1000
  max_lanes: 8
  debug_level: 2
capture:
  pcap_file: /tmp/flood.pcap
report:
  queue_size: 16
  writers:
    - type: text
      enabled: true
      text:
        root_path: /tmp/reports
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Engine.WindowDuration() != 5*time.Second || cfg.Engine.Cooldown() != 15*time.Second {
		t.Errorf("Unexpected window/cooldown: %s/%s", cfg.Engine.WindowDuration(), cfg.Engine.Cooldown())
	}
	if cfg.Engine.PPSLimit != 1000 || cfg.Engine.MaxLanes != 8 {
		t.Errorf("Unexpected engine values: %+v", cfg.Engine)
	}
	// Unset fields keep their defaults.
	if cfg.Engine.BPSLimit != DefaultPPSLimit*DefaultBytesPerPacket {
		t.Errorf("Expected default byte limit, got %d", cfg.Engine.BPSLimit)
	}
	if len(cfg.Report.Writers) != 1 || cfg.Report.Writers[0].Text.RootPath != "/tmp/reports" {
		t.Errorf("Unexpected writers: %+v", cfg.Report.Writers)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"fractional window", func(c *Config) { c.Engine.Window = "1500ms" }, ErrInvalidWindow},
		{"sub-second window", func(c *Config) { c.Engine.Window = "500ms" }, ErrInvalidWindow},
		{"unparsable window", func(c *Config) { c.Engine.Window = "soon" }, ErrInvalidWindow},
		{"zero cooldown", func(c *Config) { c.Engine.CooldownWindows = 0 }, ErrInvalidCooldown},
		{"zero pps", func(c *Config) { c.Engine.PPSLimit = 0 }, ErrInvalidLimit},
		{"zero bps", func(c *Config) { c.Engine.BPSLimit = 0 }, ErrInvalidLimit},
		{"no lanes", func(c *Config) { c.Engine.MaxLanes = 0 }, ErrInvalidLanes},
		{"too many lanes", func(c *Config) { c.Engine.MaxLanes = MaxLanesLimit + 1 }, ErrInvalidLanes},
		{"link type", func(c *Config) { c.Engine.LinkType = "ppp" }, ErrInvalidLinkType},
		{"debug level", func(c *Config) { c.Engine.DebugLevel = 4 }, ErrInvalidDebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}
