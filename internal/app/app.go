// Package app runs the interactive viewer loop.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/config"
	"github.com/Faultbox/surfelview/internal/engine/renderer"
	"github.com/Faultbox/surfelview/internal/engine/viewer"
	"github.com/Faultbox/surfelview/internal/engine/window"
)

// Config holds what the loop needs beyond the viewer context.
type Config struct {
	Title  string
	Window config.WindowConfig
	Camera config.CameraConfig
}

// App owns the window, the renderer and the viewer context.
type App struct {
	config   Config
	log      *zap.Logger
	running  bool
	window   *window.Window
	renderer *renderer.Renderer
	viewer   *viewer.Context
	controls *Controls
	scene    *viewer.Scene
	reloads  <-chan *config.Config
}

// New opens the window and the renderer for v.
func New(cfg Config, v *viewer.Context, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("initializing viewer",
		zap.String("title", cfg.Title),
		zap.Int("width", cfg.Window.Width),
		zap.Int("height", cfg.Window.Height),
	)

	a := &App{
		config:   cfg,
		log:      log,
		viewer:   v,
		controls: NewControls(v, log),
		scene:    viewer.NewScene(),
	}

	var err error
	a.window, err = window.New(window.Config{
		Title:      cfg.Title,
		Width:      cfg.Window.Width,
		Height:     cfg.Window.Height,
		Fullscreen: cfg.Window.Fullscreen,
		VSync:      cfg.Window.VSync,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	// The drawable size differs from the window size on HiDPI displays
	width, height := a.window.Size()
	a.renderer, err = renderer.New(renderer.Config{
		Width:      width,
		Height:     height,
		Background: viewer.Color{0.08, 0.08, 0.1, 1},
	}, log)
	if err != nil {
		a.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	v.Resize(width, height)
	cfg.Camera.Apply(v.Camera)
	v.FitCamera()

	return a, nil
}

// WatchConfig makes the loop apply reloaded level-of-detail settings.
func (a *App) WatchConfig(updates <-chan *config.Config) {
	a.reloads = updates
}

// Run executes the loop until the window is closed or ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	a.running = true

	frames := 0
	fpsTimer := time.Now()

	a.log.Info("starting viewer loop")

	for a.running {
		select {
		case <-ctx.Done():
			a.running = false
			continue
		case cfg := <-a.reloads:
			a.applyConfig(cfg)
		default:
		}

		for _, e := range a.window.Poll() {
			if e.Type == window.EventResize {
				width, height := a.window.Size()
				a.renderer.Resize(width, height)
				e.Width, e.Height = width, height
			}
			if !a.controls.Handle(e) {
				a.running = false
			}
		}

		if res, updated := a.viewer.Refresh(); updated {
			a.log.Debug("working set updated",
				zap.Int("ideal", len(res.Ideal)),
				zap.Int("acquired", len(res.Acquired)),
				zap.Int("released", len(res.Released)),
				zap.Int("failed", len(res.Failed)),
				zap.Int("cost", res.Cost),
				zap.Duration("elapsed", res.Elapsed),
			)
		}

		a.renderer.Begin(a.viewer.Camera.ViewProjection(a.viewer.Width, a.viewer.Height))
		a.scene.Draw(a.viewer, a.renderer)
		stats := a.renderer.End()

		if a.controls.ScreenshotRequested() {
			if _, err := a.renderer.Screenshot(a.config.Window.ScreenshotDir); err != nil {
				a.log.Warn("screenshot failed", zap.Error(err))
			}
		}

		a.window.SwapBuffers()

		frames++
		if elapsed := time.Since(fpsTimer); elapsed >= time.Second {
			fps := float64(frames) / elapsed.Seconds()
			a.window.SetTitle(fmt.Sprintf("%s | %.0f fps | %d points | target %.3g",
				a.config.Title, fps, stats.Points, a.viewer.Settings.TargetResolution))
			frames = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.viewer.ApplyLOD(cfg.Settings())
	a.log.Info("level of detail reloaded",
		zap.Float32("target_resolution", cfg.LOD.TargetResolution),
		zap.Float32("focus_radius", cfg.LOD.FocusRadius),
		zap.Int("budget", cfg.LOD.Budget),
	)
}

// Close releases the working set and destroys the window.
func (a *App) Close() {
	a.log.Info("closing viewer")

	a.viewer.Close()
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.window != nil {
		a.window.Close()
	}
}
