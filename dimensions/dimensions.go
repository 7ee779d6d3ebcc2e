// Package dimensions compares the WxH declared in a filename with the
// decoded image size and logs mismatches. It never blocks a conversion.
package dimensions

import (
	"context"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"safemigrator/cms"
	"safemigrator/logger"
	"safemigrator/models"
)

// Tolerance is the allowed difference per axis, in pixels.
const Tolerance = 5

var declaredRe = regexp.MustCompile(`-(\d{1,5})x(\d{1,5})`)

// Declared extracts the last -<w>x<h> group of a file's basename.
func Declared(file string) (w, h int, ok bool) {
	base := path.Base(strings.ReplaceAll(file, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	m := declaredRe.FindAllStringSubmatch(base, -1)
	if len(m) == 0 {
		return 0, 0, false
	}
	last := m[len(m)-1]
	w, _ = strconv.Atoi(last[1])
	h, _ = strconv.Atoi(last[2])
	return w, h, w > 0 && h > 0
}

func within(a, b int) bool {
	d := a - b
	return d >= -Tolerance && d <= Tolerance
}

type Validator struct {
	records cms.Records
	now     func() time.Time
}

func New(records cms.Records) *Validator {
	return &Validator{records: records, now: time.Now}
}

// Check logs an issue when file declares dimensions that differ from the
// actual ones. The returned issue is nil when there is nothing to report.
// Store errors are logged and swallowed.
func (v *Validator) Check(ctx context.Context, id models.AssetID, file string, width, height int) *models.DimensionIssue {
	dw, dh, ok := Declared(file)
	if !ok || (within(dw, width) && within(dh, height)) {
		return nil
	}
	issue := models.DimensionIssue{
		AssetID:        id,
		File:           file,
		DeclaredWidth:  dw,
		DeclaredHeight: dh,
		ActualWidth:    width,
		ActualHeight:   height,
		Timestamp:      v.now(),
	}
	logger.Warnw("filename dimensions mismatch", "asset", id, "file", file,
		"declared", strconv.Itoa(dw)+"x"+strconv.Itoa(dh), "actual", strconv.Itoa(width)+"x"+strconv.Itoa(height))
	if err := v.records.AppendDimensionIssue(ctx, issue); err != nil {
		logger.Errorw("could not log dimension issue", "asset", id, "error", err)
	}
	return &issue
}

func (v *Validator) List(ctx context.Context) ([]models.DimensionIssue, error) {
	return v.records.ListDimensionIssues(ctx)
}
