package encoder

import (
	"fmt"
	"image"
	"image/gif"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"safemigrator/failures"
)

// ProbeInfo describes a source image.
type ProbeInfo struct {
	MimeType   string
	Width      int
	Height     int
	HasAlpha   bool
	MultiFrame bool
	Frames     int
}

// Probe sniffs and fully decodes the image at path. Failures carry the
// invalid_source kind.
func Probe(path string) (ProbeInfo, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return ProbeInfo{}, failures.Wrap(failures.KindInvalidSource, failures.StepEncode, "read source", err)
	}
	info := ProbeInfo{MimeType: mt.String(), Frames: 1}
	if !strings.HasPrefix(info.MimeType, "image/") {
		return info, failures.New(failures.KindInvalidSource, failures.StepEncode,
			fmt.Sprintf("%s is %s, not an image", path, info.MimeType))
	}

	f, err := os.Open(path)
	if err != nil {
		return info, failures.Wrap(failures.KindInvalidSource, failures.StepEncode, "open source", err)
	}
	defer f.Close()

	var img image.Image
	switch {
	case mt.Is("image/gif"):
		g, err := gif.DecodeAll(f)
		if err != nil {
			return info, failures.Wrap(failures.KindInvalidSource, failures.StepEncode, "decode gif", err)
		}
		info.Frames = len(g.Image)
		info.MultiFrame = info.Frames > 1
		info.Width, info.Height = g.Config.Width, g.Config.Height
		if len(g.Image) > 0 {
			img = g.Image[0]
		}
	default:
		if mt.Is("image/vnd.mozilla.apng") {
			info.MultiFrame = true
		}
		img, _, err = image.Decode(f)
		if err != nil {
			return info, failures.Wrap(failures.KindInvalidSource, failures.StepEncode, "decode source", err)
		}
		b := img.Bounds()
		info.Width, info.Height = b.Dx(), b.Dy()
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		info.HasAlpha = !o.Opaque()
	}
	return info, nil
}
