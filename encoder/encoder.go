package encoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"safemigrator/failures"
	"safemigrator/logger"
)

// EncodeFunc turns the raster file at input into output. input is always a
// JPEG or PNG file.
type EncodeFunc func(ctx context.Context, input, output string, opts EncodeOptions) error

type EncodeOptions struct {
	Quality int
	Method  int // cwebp -m, 0-6
	Speed   int // avifenc --speed, 0-10
	Effort  int // cjxl -e, 1-9
	Box     BoundingBox
}

type encoderEntry struct {
	cmd string
	fn  EncodeFunc
}

// Registry maps target format -> encoder. Capabilities are probed once,
// on first use, and cached for the registry's lifetime.
type Registry struct {
	mu       sync.RWMutex
	encoders map[string]encoderEntry
	decoders map[string]string

	capsOnce sync.Once
	caps     map[string]bool

	// LookPath resolves encoder commands; exec.LookPath by default.
	LookPath func(file string) (string, error)
	// TempDir is where intermediate files are written; os.TempDir() by default.
	TempDir string
}

func NewRegistry() *Registry {
	return &Registry{
		encoders: map[string]encoderEntry{},
		decoders: map[string]string{},
		LookPath: exec.LookPath,
	}
}

// Register adds an encoder backed by cmdName. The format is only reported
// as supported if cmdName is found in PATH.
func (r *Registry) Register(format, cmdName string, fn EncodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[format] = encoderEntry{cmd: cmdName, fn: fn}
}

// RegisterFunc adds an encoder with no command dependency.
func (r *Registry) RegisterFunc(format string, fn EncodeFunc) {
	r.Register(format, "", fn)
}

// RegisterDecoder names the command that converts files of format back to
// PNG (used when rendering derived sizes from a converted original).
func (r *Registry) RegisterDecoder(format, cmdName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[format] = cmdName
}

// Get looks up an encoder by format.
func (r *Registry) Get(format string) (EncodeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encoders[format]
	return e.fn, ok
}

func (r *Registry) probeCapabilities() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.caps = map[string]bool{}
	for format, e := range r.encoders {
		if e.cmd == "" {
			r.caps[format] = true
			logger.Debugf("encoder [%s] registered (no command required)", format)
			continue
		}
		if _, err := r.LookPath(e.cmd); err != nil {
			logger.Warnf("encoder [%s] skipped: command '%s' not found in PATH", format, e.cmd)
			continue
		}
		r.caps[format] = true
		logger.Debugf("encoder [%s] registered (command: %s)", format, e.cmd)
	}
}

// Supports reports whether format can be encoded in this process.
func (r *Registry) Supports(format string) bool {
	r.capsOnce.Do(r.probeCapabilities)
	return r.caps[format]
}

// Capabilities lists the supported formats, sorted.
func (r *Registry) Capabilities() []string {
	r.capsOnce.Do(r.probeCapabilities)
	out := make([]string, 0, len(r.caps))
	for f := range r.caps {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// RegisterDefaults wires the command-line encoders and decoders.
func (r *Registry) RegisterDefaults() {
	r.Register("webp", "cwebp", EncodeWebP)
	r.Register("avif", "avifenc", EncodeAVIF)
	r.Register("jxl", "cjxl", EncodeJXL)
	r.RegisterDecoder("avif", "avifdec")
	r.RegisterDecoder("jxl", "djxl")
}

// Encode converts src into dst in the target format. The source is never
// modified; dst only appears once the encoder finished and the output was
// checked.
func (r *Registry) Encode(ctx context.Context, src, dst, format string, opts EncodeOptions) error {
	if !r.Supports(format) {
		return failures.New(failures.KindUnsupportedFormat, failures.StepEncode,
			fmt.Sprintf("no encoder available for %s", format))
	}
	r.mu.RLock()
	entry := r.encoders[format]
	r.mu.RUnlock()

	img, srcFormat, err := decodeFile(src)
	if err != nil {
		return failures.Wrap(failures.KindInvalidSource, failures.StepEncode, "cannot decode "+filepath.Base(src), err)
	}

	work, err := os.MkdirTemp(r.TempDir, "encode-*")
	if err != nil {
		return failures.Wrap(failures.KindEncodeFailed, failures.StepEncode, "create work dir", err)
	}
	defer os.RemoveAll(work)

	input := src
	b := img.Bounds()
	w, h, resize := opts.Box.Fit(b.Dx(), b.Dy())
	if resize {
		img, err = Resize(img, w, h)
		if err != nil {
			return failures.Wrap(failures.KindResizeFailed, failures.StepEncode, "bounding box resize", err)
		}
	}
	if resize || srcFormat == "gif" {
		input = filepath.Join(work, "input.png")
		if err := writePNG(input, img); err != nil {
			return failures.Wrap(failures.KindEncodeFailed, failures.StepEncode, "write intermediate", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return failures.Wrap(failures.KindEncodeFailed, failures.StepEncode, "create destination dir", err)
	}
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".part")
	defer os.Remove(tmp)

	if err := entry.fn(ctx, input, tmp, opts); err != nil {
		return failures.Wrap(failures.KindEncodeFailed, failures.StepEncode, format+" encoder", err)
	}
	fi, err := os.Stat(tmp)
	if err != nil || fi.Size() == 0 {
		if err == nil {
			err = fmt.Errorf("empty output")
		}
		return failures.Wrap(failures.KindEncodeFailed, failures.StepEncode, format+" encoder produced no output", err)
	}
	if format == "webp" && entry.cmd != "" {
		if err := verifyWebP(tmp, w, h); err != nil {
			return failures.Wrap(failures.KindEncodeFailed, failures.StepEncode, "webp output check", err)
		}
	}
	if err := os.Rename(tmp, dst); err != nil {
		return failures.Wrap(failures.KindEncodeFailed, failures.StepEncode, "place output", err)
	}
	logger.Debugf("encoded %s -> %s (%s, %dx%d)", src, dst, format, w, h)
	return nil
}
