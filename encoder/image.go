package encoder

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// BoundingBox is the optional pre-encode resize step. A zero Width or
// Height leaves that axis unconstrained.
type BoundingBox struct {
	Enabled bool
	Mode    string // "max" shrinks to fit, "min" enlarges to cover
	Width   int
	Height  int
}

// Fit returns the target dimensions for a w x h image and whether they
// differ from the input. Aspect ratio is preserved.
func (b BoundingBox) Fit(w, h int) (int, int, bool) {
	if !b.Enabled || w <= 0 || h <= 0 || (b.Width <= 0 && b.Height <= 0) {
		return w, h, false
	}
	sx, sy := math.Inf(1), math.Inf(1)
	if b.Width > 0 {
		sx = float64(b.Width) / float64(w)
	}
	if b.Height > 0 {
		sy = float64(b.Height) / float64(h)
	}

	var scale float64
	switch b.Mode {
	case "min":
		if (b.Width <= 0 || w >= b.Width) && (b.Height <= 0 || h >= b.Height) {
			return w, h, false
		}
		scale = math.Max(finite(sx), finite(sy))
	default:
		if (b.Width <= 0 || w <= b.Width) && (b.Height <= 0 || h <= b.Height) {
			return w, h, false
		}
		scale = math.Min(sx, sy)
	}
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return nw, nh, nw != w || nh != h
}

func finite(f float64) float64 {
	if math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Resize scales img to exactly w x h.
func Resize(img image.Image, w, h int) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", w, h)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// ResizeCrop scales img to cover w x h and crops the centre.
func ResizeCrop(img image.Image, w, h int) (image.Image, error) {
	b := img.Bounds()
	if w <= 0 || h <= 0 || b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("invalid size %dx%d", w, h)
	}
	scale := math.Max(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
	cw := int(math.Round(float64(w) / scale))
	ch := int(math.Round(float64(h) / scale))
	cw, ch = min(max(cw, 1), b.Dx()), min(max(ch, 1), b.Dy())
	x0 := b.Min.X + (b.Dx()-cw)/2
	y0 := b.Min.Y + (b.Dy()-ch)/2

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, image.Rect(x0, y0, x0+cw, y0+ch), xdraw.Src, nil)
	return dst, nil
}

// decodeFile fully decodes a JPEG, PNG, GIF (first frame) or WebP file.
func decodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	return image.Decode(f)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, ok := img.(*image.Paletted); ok {
		rgba := image.NewNRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
		img = rgba
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// verifyWebP checks the encoded file parses as WebP with the expected size.
func verifyWebP(path string, w, h int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	cfg, err := webp.DecodeConfig(f)
	if err != nil {
		return err
	}
	if cfg.Width != w || cfg.Height != h {
		return fmt.Errorf("got %dx%d, want %dx%d", cfg.Width, cfg.Height, w, h)
	}
	return nil
}
