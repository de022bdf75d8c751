package renderer

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"
)

// Screenshot writes the current framebuffer to a timestamped PNG in dir and
// returns its path. Call it after drawing and before swapping buffers.
func (r *Renderer) Screenshot(dir string) (string, error) {
	w, h := r.config.Width, r.config.Height
	pixels := make([]byte, w*h*4)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))

	name := fmt.Sprintf("surfelview_%s.png", time.Now().Format("2006-01-02_15-04-05.000"))
	path, err := savePNG(filepath.Join(dir, name), pixels, w, h)
	if err != nil {
		return "", err
	}
	r.log.Info("screenshot saved", zap.String("path", path))
	return path, nil
}

// flipRows converts bottom-up RGBA rows as returned by glReadPixels into an
// image.
func flipRows(pixels []byte, width, height int) (*image.RGBA, error) {
	if len(pixels) != width*height*4 {
		return nil, fmt.Errorf("pixel data size mismatch: expected %d, got %d", width*height*4, len(pixels))
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	row := width * 4
	for y := 0; y < height; y++ {
		src := (height - 1 - y) * row
		copy(img.Pix[y*img.Stride:y*img.Stride+row], pixels[src:src+row])
	}
	return img, nil
}

func savePNG(path string, pixels []byte, width, height int) (string, error) {
	img, err := flipRows(pixels, width, height)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return "", fmt.Errorf("encoding PNG: %w", err)
	}
	return path, nil
}
