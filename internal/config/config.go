// Package config handles viewer configuration loading and management.
package config

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/surfelview/internal/engine/camera"
	"github.com/Faultbox/surfelview/internal/engine/viewer"
)

// Config holds all viewer settings.
type Config struct {
	Window  WindowConfig  `yaml:"window"`
	Camera  CameraConfig  `yaml:"camera"`
	Dataset DatasetConfig `yaml:"dataset"`
	LOD     LODConfig     `yaml:"lod"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`

	source string
}

// WindowConfig holds display settings.
type WindowConfig struct {
	Width      int     `yaml:"width" validate:"gte=64"`
	Height     int     `yaml:"height" validate:"gte=64"`
	Fullscreen bool    `yaml:"fullscreen"`
	VSync      bool    `yaml:"vsync"`
	PointSize  float32 `yaml:"point_size" validate:"gt=0,lte=64"`
	ShowBounds bool    `yaml:"show_bounds"`

	ScreenshotDir string `yaml:"screenshot_dir"`
}

// CameraConfig holds projection and input settings of the orbit camera.
type CameraConfig struct {
	FOV             float32 `yaml:"fov" validate:"gt=0,lt=180"` // Degrees
	DragSensitivity float32 `yaml:"drag_sensitivity" validate:"gt=0"`
	ZoomSensitivity float32 `yaml:"zoom_sensitivity" validate:"gt=0,lt=1"`
	PanSensitivity  float32 `yaml:"pan_sensitivity" validate:"gt=0"`
}

// DatasetConfig locates the point-cloud database.
type DatasetConfig struct {
	Backend string `yaml:"backend" validate:"oneof=archive badger"`
	Path    string `yaml:"path"`
}

// LODConfig holds the level-of-detail controls. This section is hot-reloaded.
type LODConfig struct {
	TargetResolution   float32 `yaml:"target_resolution" validate:"gt=0"`
	FocusRadius        float32 `yaml:"focus_radius" validate:"gte=0"`
	Budget             int     `yaml:"budget" validate:"gte=0"`
	OutsideFocusFactor float32 `yaml:"outside_focus_factor" validate:"gte=1"`
	Subsampling        int     `yaml:"subsampling" validate:"gte=1"`
}

// MetricsConfig holds the admin HTTP server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" validate:"oneof=debug info warn error"`
	Format  string `yaml:"format" validate:"oneof=console json"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	lod := viewer.DefaultSettings()
	return &Config{
		Window: WindowConfig{
			Width:     1280,
			Height:    720,
			VSync:     true,
			PointSize: lod.PointSize,

			ScreenshotDir: "screenshots",
		},
		Camera: CameraConfig{
			FOV:             45,
			DragSensitivity: 0.005,
			ZoomSensitivity: 0.1,
			PanSensitivity:  0.002,
		},
		Dataset: DatasetConfig{
			Backend: "archive",
		},
		LOD: LODConfig{
			TargetResolution:   lod.TargetResolution,
			FocusRadius:        lod.FocusRadius,
			Budget:             lod.Budget,
			OutsideFocusFactor: lod.OutsideFocusFactor,
			Subsampling:        lod.Subsampling,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Settings converts the level-of-detail and window sections into viewer
// settings.
func (c *Config) Settings() viewer.Settings {
	return viewer.Settings{
		TargetResolution:   c.LOD.TargetResolution,
		FocusRadius:        c.LOD.FocusRadius,
		Budget:             c.LOD.Budget,
		OutsideFocusFactor: c.LOD.OutsideFocusFactor,
		Subsampling:        c.LOD.Subsampling,
		PointSize:          c.Window.PointSize,
		ShowBounds:         c.Window.ShowBounds,
	}
}

// Apply copies the camera section into cam.
func (c CameraConfig) Apply(cam *camera.OrbitCamera) {
	cam.FOV = c.FOV * math32.Pi / 180
	cam.DragSensitivity = c.DragSensitivity
	cam.ZoomSensitivity = c.ZoomSensitivity
	cam.PanSensitivity = c.PanSensitivity
}
