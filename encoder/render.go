package encoder

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
)

// Render produces a derived size of src at dst in format. With crop the
// image covers w x h exactly; otherwise it is shrunk to fit inside w x h.
// The rendered dimensions are returned.
func (r *Registry) Render(ctx context.Context, src, dst, format string, w, h int, crop bool, opts EncodeOptions) (int, int, error) {
	work, err := os.MkdirTemp(r.TempDir, "render-*")
	if err != nil {
		return 0, 0, err
	}
	defer os.RemoveAll(work)

	img, err := r.decodeAny(ctx, src, format, work)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", filepath.Base(src), err)
	}

	b := img.Bounds()
	var out image.Image
	switch {
	case crop:
		out, err = ResizeCrop(img, w, h)
	default:
		nw, nh, changed := BoundingBox{Enabled: true, Mode: "max", Width: w, Height: h}.Fit(b.Dx(), b.Dy())
		out = img
		if changed {
			out, err = Resize(img, nw, nh)
		}
	}
	if err != nil {
		return 0, 0, err
	}

	input := filepath.Join(work, "size.png")
	if err := writePNG(input, out); err != nil {
		return 0, 0, err
	}
	opts.Box = BoundingBox{}
	if err := r.Encode(ctx, input, dst, format, opts); err != nil {
		return 0, 0, err
	}
	ob := out.Bounds()
	return ob.Dx(), ob.Dy(), nil
}

// decodeAny decodes formats Go reads natively and falls back to the
// registered command-line decoder for the rest.
func (r *Registry) decodeAny(ctx context.Context, path, format, work string) (image.Image, error) {
	img, _, err := decodeFile(path)
	if err == nil {
		return img, nil
	}
	r.mu.RLock()
	cmd := r.decoders[format]
	r.mu.RUnlock()
	if cmd == "" {
		return nil, err
	}
	if _, lerr := r.LookPath(cmd); lerr != nil {
		return nil, fmt.Errorf("%w (and %s not available)", err, cmd)
	}
	tmp := filepath.Join(work, "decoded.png")
	if rerr := run(ctx, cmd, path, tmp); rerr != nil {
		return nil, rerr
	}
	img, _, err = decodeFile(tmp)
	return img, err
}

// Dimensions reads the pixel size of an image in any supported format.
func (r *Registry) Dimensions(ctx context.Context, path, format string) (int, int, error) {
	if f, err := os.Open(path); err == nil {
		cfg, _, derr := image.DecodeConfig(f)
		f.Close()
		if derr == nil {
			return cfg.Width, cfg.Height, nil
		}
	}
	work, err := os.MkdirTemp(r.TempDir, "dims-*")
	if err != nil {
		return 0, 0, err
	}
	defer os.RemoveAll(work)
	img, err := r.decodeAny(ctx, path, format, work)
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}
