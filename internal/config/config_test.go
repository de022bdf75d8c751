package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/spf13/pflag"

	"github.com/Faultbox/surfelview/internal/engine/camera"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Window.Width != 1280 || cfg.Window.Height != 720 {
		t.Errorf("expected 1280x720, got %dx%d", cfg.Window.Width, cfg.Window.Height)
	}
	if cfg.Dataset.Backend != "archive" {
		t.Errorf("expected archive backend, got %s", cfg.Dataset.Backend)
	}
	if cfg.LOD.TargetResolution != 1 {
		t.Errorf("expected target resolution 1, got %f", cfg.LOD.TargetResolution)
	}
	if cfg.LOD.Budget != 4_000_000 {
		t.Errorf("expected budget 4000000, got %d", cfg.LOD.Budget)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics to be disabled by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
window:
  width: 1920
  height: 1080
  point_size: 3
dataset:
  backend: badger
  path: /data/city
lod:
  target_resolution: 0.5
  focus_radius: 25
  budget: 1000000
metrics:
  enabled: true
  addr: ":9100"
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Window.Width != 1920 || cfg.Window.PointSize != 3 {
		t.Errorf("window section not loaded: %+v", cfg.Window)
	}
	if cfg.Dataset.Backend != "badger" || cfg.Dataset.Path != "/data/city" {
		t.Errorf("dataset section not loaded: %+v", cfg.Dataset)
	}
	if cfg.LOD.TargetResolution != 0.5 || cfg.LOD.FocusRadius != 25 || cfg.LOD.Budget != 1000000 {
		t.Errorf("lod section not loaded: %+v", cfg.LOD)
	}
	// Unset keys keep their defaults
	if cfg.LOD.Subsampling != 1 {
		t.Errorf("expected default subsampling 1, got %d", cfg.LOD.Subsampling)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9100" {
		t.Errorf("metrics section not loaded: %+v", cfg.Metrics)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config: %v", err)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(configPath, []byte("lod: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if err := loadFromFile(Default(), configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if err := loadFromFile(Default(), "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"zero target", func(c *Config) { c.LOD.TargetResolution = 0 }, "LOD.TargetResolution"},
		{"negative budget", func(c *Config) { c.LOD.Budget = -1 }, "LOD.Budget"},
		{"negative focus radius", func(c *Config) { c.LOD.FocusRadius = -2 }, "LOD.FocusRadius"},
		{"factor below one", func(c *Config) { c.LOD.OutsideFocusFactor = 0.5 }, "LOD.OutsideFocusFactor"},
		{"no subsampling", func(c *Config) { c.LOD.Subsampling = 0 }, "LOD.Subsampling"},
		{"unknown backend", func(c *Config) { c.Dataset.Backend = "sqlite" }, "Dataset.Backend"},
		{"tiny window", func(c *Config) { c.Window.Width = 10 }, "Window.Width"},
		{"bad fov", func(c *Config) { c.Camera.FOV = 180 }, "Camera.FOV"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "Logging.Level"},
		{"bad addr", func(c *Config) { c.Metrics.Addr = "no port" }, "Metrics.Addr"},
		{"enabled without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "Metrics.Addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidateLOD(t *testing.T) {
	if err := ValidateLOD(Default().LOD); err != nil {
		t.Errorf("default lod should be valid: %v", err)
	}
	if err := ValidateLOD(LODConfig{}); err == nil {
		t.Error("expected zero lod to be invalid")
	}
}

func TestSettings(t *testing.T) {
	cfg := Default()
	cfg.LOD.FocusRadius = 12
	cfg.LOD.Subsampling = 3
	cfg.Window.ShowBounds = true

	s := cfg.Settings()
	if s.FocusRadius != 12 || s.Subsampling != 3 || !s.ShowBounds {
		t.Errorf("unexpected settings %+v", s)
	}
	if s.Budget != cfg.LOD.Budget || s.PointSize != cfg.Window.PointSize {
		t.Errorf("unexpected settings %+v", s)
	}
}

func TestCameraApply(t *testing.T) {
	cam := camera.NewOrbitCamera()
	cfg := Default().Camera
	cfg.FOV = 90
	cfg.ZoomSensitivity = 0.2
	cfg.Apply(cam)

	if math32.Abs(cam.FOV-math32.Pi/2) > 1e-6 {
		t.Errorf("expected fov pi/2, got %f", cam.FOV)
	}
	if cam.ZoomSensitivity != 0.2 {
		t.Errorf("expected zoom sensitivity 0.2, got %f", cam.ZoomSensitivity)
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("expected non-empty config directory")
	}
	if !strings.Contains(strings.ToLower(dir), "surfelview") {
		t.Errorf("expected config dir to name the application, got %s", dir)
	}
}

func TestFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		verify func(*testing.T, *Config)
	}{
		{
			name: "debug flag",
			args: []string{"--debug"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" || !cfg.Window.ShowBounds {
					t.Errorf("debug flag not applied: %+v %+v", cfg.Logging, cfg.Window)
				}
			},
		},
		{
			name: "dataset flags",
			args: []string{"-d", "/tmp/set.db", "--backend", "badger"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Dataset.Path != "/tmp/set.db" || cfg.Dataset.Backend != "badger" {
					t.Errorf("dataset flags not applied: %+v", cfg.Dataset)
				}
			},
		},
		{
			name: "lod flags",
			args: []string{"--budget", "0", "--target", "2", "--focus-radius", "5"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.LOD.Budget != 0 || cfg.LOD.TargetResolution != 2 || cfg.LOD.FocusRadius != 5 {
					t.Errorf("lod flags not applied: %+v", cfg.LOD)
				}
			},
		},
		{
			name: "metrics flag",
			args: []string{"--metrics", "localhost:9200"},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "localhost:9200" {
					t.Errorf("metrics flag not applied: %+v", cfg.Metrics)
				}
			},
		},
		{
			name: "unset flags keep defaults",
			args: nil,
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Window.Width != 1280 || cfg.LOD.Budget != 4_000_000 {
					t.Errorf("defaults overridden: %+v %+v", cfg.Window, cfg.LOD)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			flags := BindFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}

			cfg := Default()
			flags.apply(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestSetPositional(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"no arguments", nil, "", false},
		{"dataset path", []string{"scan.pcdb"}, "scan.pcdb", false},
		{"extra arguments", []string{"a.pcdb", "b.pcdb"}, "", true},
		{"flag and positional", []string{"-d", "flag.pcdb", "pos.pcdb"}, "flag.pcdb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			flags := BindFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}

			err := flags.SetPositional(fs.Args())
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetPositional() error = %v, wantErr %v", err, tt.wantErr)
			}

			cfg := Default()
			flags.apply(cfg)
			if tt.want != "" && cfg.Dataset.Path != tt.want {
				t.Errorf("Dataset.Path = %q, want %q", cfg.Dataset.Path, tt.want)
			}
		})
	}

	if err := (&Flags{}).SetPositional([]string{"x"}); err == nil {
		t.Error("expected error for unbound flags")
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
window:
  width: 1600
  height: 900
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)
	if err := fs.Parse([]string{"--config", configPath, "--width", "1920"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Width from the flag, height from the file
	if cfg.Window.Width != 1920 {
		t.Errorf("expected width 1920 from flag, got %d", cfg.Window.Width)
	}
	if cfg.Window.Height != 900 {
		t.Errorf("expected height 900 from file, got %d", cfg.Window.Height)
	}
	if cfg.Source() != configPath {
		t.Errorf("expected source %s, got %s", configPath, cfg.Source())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("lod:\n  target_resolution: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)
	if err := fs.Parse([]string{"--config", configPath}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(flags); err == nil {
		t.Error("expected invalid config to be rejected")
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.LOD.Budget = 123

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatal(err)
	}
	if loaded.LOD.Budget != 123 {
		t.Errorf("expected budget 123, got %d", loaded.LOD.Budget)
	}
}

func TestWatcherReloads(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("lod:\n  budget: 100\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)
	if err := fs.Parse([]string{"--config", configPath}); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(configPath, func() (*Config, error) { return Load(flags) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Debounce = 50 * time.Millisecond
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// An invalid edit is skipped
	if err := os.WriteFile(configPath, []byte("lod:\n  budget: -5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-w.Updates():
		t.Fatalf("invalid config delivered: %+v", cfg.LOD)
	case <-time.After(300 * time.Millisecond):
	}

	if err := os.WriteFile(configPath, []byte("lod:\n  budget: 2500\n  focus_radius: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-w.Updates():
		if cfg.LOD.Budget != 2500 || cfg.LOD.FocusRadius != 3 {
			t.Errorf("unexpected reloaded lod %+v", cfg.LOD)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
