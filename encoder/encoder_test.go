package encoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safemigrator/failures"
)

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeAlphaPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{G: 100, A: 10})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func writeGIF(t *testing.T, path string, frames int) {
	t.Helper()
	pal := color.Palette{color.Black, color.White}
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		g.Image = append(g.Image, image.NewPaletted(image.Rect(0, 0, 8, 8), pal))
		g.Delay = append(g.Delay, 10)
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gif.EncodeAll(f, g))
	require.NoError(t, f.Close())
}

// copyEncoder stands in for a real encoder: it copies its (PNG or JPEG)
// input and records what it was given.
type copyEncoder struct {
	inputs []string
	sizes  []image.Point
}

func (c *copyEncoder) encode(_ context.Context, in, out string, _ EncodeOptions) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return err
	}
	c.inputs = append(c.inputs, in)
	c.sizes = append(c.sizes, image.Pt(cfg.Width, cfg.Height))
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, f)
	return err
}

func newTestRegistry(t *testing.T) (*Registry, *copyEncoder) {
	r := NewRegistry()
	r.TempDir = t.TempDir()
	r.LookPath = func(string) (string, error) { return "", errors.New("not found") }
	c := &copyEncoder{}
	r.RegisterFunc("webp", c.encode)
	r.Register("avif", "avifenc", EncodeAVIF)
	return r, c
}

func TestCapabilities(t *testing.T) {
	r, _ := newTestRegistry(t)
	assert.True(t, r.Supports("webp"))
	assert.False(t, r.Supports("avif"))
	assert.False(t, r.Supports("jxl"))
	assert.Equal(t, []string{"webp"}, r.Capabilities())

	// cached: a later registration is not picked up
	r.RegisterFunc("jxl", func(context.Context, string, string, EncodeOptions) error { return nil })
	assert.False(t, r.Supports("jxl"))
}

func TestEncode(t *testing.T) {
	r, c := newTestRegistry(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	writeJPEG(t, src, 100, 100)
	dst := filepath.Join(dir, "out", "a.webp")

	require.NoError(t, r.Encode(context.Background(), src, dst, "webp", EncodeOptions{Quality: 80}))
	assert.FileExists(t, dst)
	assert.FileExists(t, src)
	require.Len(t, c.inputs, 1)
	assert.Equal(t, src, c.inputs[0])
	assert.NoFileExists(t, filepath.Join(dir, "out", ".a.webp.part"))
}

func TestEncodeBoundingBox(t *testing.T) {
	r, c := newTestRegistry(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	writeJPEG(t, src, 200, 100)

	opts := EncodeOptions{Quality: 80, Box: BoundingBox{Enabled: true, Mode: "max", Width: 100, Height: 100}}
	require.NoError(t, r.Encode(context.Background(), src, filepath.Join(dir, "a.webp"), "webp", opts))
	require.Len(t, c.sizes, 1)
	assert.Equal(t, image.Pt(100, 50), c.sizes[0])
	assert.NotEqual(t, src, c.inputs[0])
}

func TestEncodeGIFGoesThroughPNG(t *testing.T) {
	r, c := newTestRegistry(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "a.gif")
	writeGIF(t, src, 1)

	require.NoError(t, r.Encode(context.Background(), src, filepath.Join(dir, "a.webp"), "webp", EncodeOptions{}))
	require.Len(t, c.inputs, 1)
	assert.Equal(t, ".png", filepath.Ext(c.inputs[0]))
}

func TestEncodeFailures(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RegisterFunc("jxl", func(context.Context, string, string, EncodeOptions) error {
		return errors.New("boom")
	})
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	writeJPEG(t, src, 10, 10)

	err := r.Encode(context.Background(), src, filepath.Join(dir, "a.avif"), "avif", EncodeOptions{})
	assert.Equal(t, failures.KindUnsupportedFormat, failures.KindOf(err))

	err = r.Encode(context.Background(), src, filepath.Join(dir, "a.jxl"), "jxl", EncodeOptions{})
	assert.Equal(t, failures.KindEncodeFailed, failures.KindOf(err))
	assert.NoFileExists(t, filepath.Join(dir, "a.jxl"))

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	truncated := filepath.Join(dir, "t.jpg")
	require.NoError(t, os.WriteFile(truncated, data[:len(data)/2], 0o644))
	err = r.Encode(context.Background(), truncated, filepath.Join(dir, "t.webp"), "webp", EncodeOptions{})
	assert.Equal(t, failures.KindInvalidSource, failures.KindOf(err))
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()

	jpg := filepath.Join(dir, "a.jpg")
	writeJPEG(t, jpg, 30, 20)
	info, err := Probe(jpg)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", info.MimeType)
	assert.Equal(t, 30, info.Width)
	assert.Equal(t, 20, info.Height)
	assert.False(t, info.HasAlpha)
	assert.False(t, info.MultiFrame)

	pngPath := filepath.Join(dir, "b.png")
	writeAlphaPNG(t, pngPath, 4, 4)
	info, err = Probe(pngPath)
	require.NoError(t, err)
	assert.True(t, info.HasAlpha)

	anim := filepath.Join(dir, "c.gif")
	writeGIF(t, anim, 3)
	info, err = Probe(anim)
	require.NoError(t, err)
	assert.True(t, info.MultiFrame)
	assert.Equal(t, 3, info.Frames)

	txt := filepath.Join(dir, "d.jpg")
	require.NoError(t, os.WriteFile(txt, []byte("not an image at all"), 0o644))
	_, err = Probe(txt)
	assert.Equal(t, failures.KindInvalidSource, failures.KindOf(err))
}

func TestBoundingBoxFit(t *testing.T) {
	tests := []struct {
		name   string
		box    BoundingBox
		w, h   int
		ww, wh int
		change bool
	}{
		{"disabled", BoundingBox{Mode: "max", Width: 10, Height: 10}, 100, 50, 100, 50, false},
		{"max shrinks", BoundingBox{Enabled: true, Mode: "max", Width: 50, Height: 50}, 100, 50, 50, 25, true},
		{"max keeps smaller", BoundingBox{Enabled: true, Mode: "max", Width: 500, Height: 500}, 100, 50, 100, 50, false},
		{"max width only", BoundingBox{Enabled: true, Mode: "max", Width: 40}, 80, 80, 40, 40, true},
		{"min enlarges", BoundingBox{Enabled: true, Mode: "min", Width: 200, Height: 200}, 100, 50, 400, 200, true},
		{"min keeps larger", BoundingBox{Enabled: true, Mode: "min", Width: 50, Height: 50}, 100, 80, 100, 80, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, changed := tt.box.Fit(tt.w, tt.h)
			assert.Equal(t, tt.ww, w)
			assert.Equal(t, tt.wh, h)
			assert.Equal(t, tt.change, changed)
		})
	}
}

func TestRender(t *testing.T) {
	r, c := newTestRegistry(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	writeAlphaPNG(t, src, 100, 60)

	w, h, err := r.Render(context.Background(), src, filepath.Join(dir, "a-50x50.webp"), "webp", 50, 50, true, EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 50, w)
	assert.Equal(t, 50, h)

	w, h, err = r.Render(context.Background(), src, filepath.Join(dir, "a-300x300.webp"), "webp", 50, 300, false, EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 50, w)
	assert.Equal(t, 30, h)
	assert.Len(t, c.inputs, 2)
}

func TestDimensions(t *testing.T) {
	r, _ := newTestRegistry(t)
	p := filepath.Join(t.TempDir(), "a.jpg")
	writeJPEG(t, p, 12, 7)

	w, h, err := r.Dimensions(context.Background(), p, "jpg")
	require.NoError(t, err)
	assert.Equal(t, 12, w)
	assert.Equal(t, 7, h)

	_, _, err = r.Dimensions(context.Background(), filepath.Join(t.TempDir(), "missing.avif"), "avif")
	assert.Error(t, err)
}
