// Package settings holds the migration settings record, its validation and
// the skip rules derived from it.
package settings

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Target formats.
const (
	FormatWebP = "webp"
	FormatAVIF = "avif"
	FormatJXL  = "jxl"
)

// Bounding-box modes.
const (
	BoxMax = "max"
	BoxMin = "min"
)

// Settings is the process-wide migration settings record.
type Settings struct {
	TargetFormat string `yaml:"target_format" json:"target_format" validate:"required,oneof=webp avif jxl"`
	Quality      int    `yaml:"quality" json:"quality" validate:"min=1,max=100"`
	WebPQuality  int    `yaml:"webp_quality,omitempty" json:"webp_quality,omitempty" validate:"omitempty,min=1,max=100"`
	AVIFQuality  int    `yaml:"avif_quality,omitempty" json:"avif_quality,omitempty" validate:"omitempty,min=1,max=100"`
	JXLQuality   int    `yaml:"jxl_quality,omitempty" json:"jxl_quality,omitempty" validate:"omitempty,min=1,max=100"`
	WebPMethod   int    `yaml:"webp_method" json:"webp_method" validate:"min=0,max=6"`
	AVIFSpeed    int    `yaml:"avif_speed" json:"avif_speed" validate:"min=0,max=10"`
	JXLEffort    int    `yaml:"jxl_effort" json:"jxl_effort" validate:"min=1,max=9"`
	BatchSize    int    `yaml:"batch_size" json:"batch_size" validate:"min=1"`
	Validation   bool   `yaml:"validation" json:"validation"`
	SkipFolders  string `yaml:"skip_folders" json:"skip_folders"`
	SkipMimes    string `yaml:"skip_mimes" json:"skip_mimes"`

	BoundingBoxEnable bool   `yaml:"bounding_box_enable" json:"bounding_box_enable"`
	BoundingBoxMode   string `yaml:"bounding_box_mode" json:"bounding_box_mode" validate:"omitempty,oneof=max min"`
	BoundingBoxWidth  int    `yaml:"bounding_box_width" json:"bounding_box_width" validate:"min=0"`
	BoundingBoxHeight int    `yaml:"bounding_box_height" json:"bounding_box_height" validate:"min=0"`

	CheckFilenameDimensions bool `yaml:"check_filename_dimensions" json:"check_filename_dimensions"`

	MaxRetries int           `yaml:"max_retries" json:"max_retries" validate:"min=0"`
	TimeBudget time.Duration `yaml:"time_budget" json:"time_budget" validate:"min=0"`
}

// Default returns the settings used when none were saved yet.
func Default() Settings {
	return Settings{
		TargetFormat:    FormatWebP,
		Quality:         75,
		WebPMethod:      4,
		AVIFSpeed:       6,
		JXLEffort:       7,
		BatchSize:       10,
		Validation:      true,
		SkipMimes:       "image/svg+xml",
		BoundingBoxMode: BoxMax,
		MaxRetries:      3,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field range and the bounding box coherence.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if s.BoundingBoxEnable && s.BoundingBoxWidth == 0 && s.BoundingBoxHeight == 0 {
		return fmt.Errorf("invalid settings: bounding box enabled without width or height")
	}
	return nil
}

// QualityFor returns the per-format quality, falling back to Quality.
func (s Settings) QualityFor(format string) int {
	var q int
	switch format {
	case FormatWebP:
		q = s.WebPQuality
	case FormatAVIF:
		q = s.AVIFQuality
	case FormatJXL:
		q = s.JXLQuality
	}
	if q == 0 {
		return s.Quality
	}
	return q
}

// Extension returns the file extension of the target format, with dot.
func (s Settings) Extension() string {
	return "." + s.TargetFormat
}

// MimeType returns the media type of the target format.
func (s Settings) MimeType() string {
	return MimeOf(s.TargetFormat)
}

// MimeOf maps a target format to its media type.
func MimeOf(format string) string {
	switch format {
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	case FormatJXL:
		return "image/jxl"
	}
	return ""
}

// Overrides are per-run changes merged on top of the saved settings. Nil
// fields are left alone.
type Overrides struct {
	TargetFormat *string `json:"target_format,omitempty" yaml:"target_format,omitempty"`
	Quality      *int    `json:"quality,omitempty" yaml:"quality,omitempty"`
	BatchSize    *int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	Validation   *bool   `json:"validation,omitempty" yaml:"validation,omitempty"`
	SkipFolders  *string `json:"skip_folders,omitempty" yaml:"skip_folders,omitempty"`
	SkipMimes    *string `json:"skip_mimes,omitempty" yaml:"skip_mimes,omitempty"`
	MaxRetries   *int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	TimeBudget   *string `json:"time_budget,omitempty" yaml:"time_budget,omitempty"`
}

// Apply returns s with o merged in and validated.
func (s Settings) Apply(o *Overrides) (Settings, error) {
	if o == nil {
		return s, s.Validate()
	}
	if o.TargetFormat != nil {
		s.TargetFormat = strings.ToLower(*o.TargetFormat)
	}
	if o.Quality != nil {
		s.Quality = *o.Quality
	}
	if o.BatchSize != nil {
		s.BatchSize = *o.BatchSize
	}
	if o.Validation != nil {
		s.Validation = *o.Validation
	}
	if o.SkipFolders != nil {
		s.SkipFolders = *o.SkipFolders
	}
	if o.SkipMimes != nil {
		s.SkipMimes = *o.SkipMimes
	}
	if o.MaxRetries != nil {
		s.MaxRetries = *o.MaxRetries
	}
	if o.TimeBudget != nil {
		d, err := time.ParseDuration(*o.TimeBudget)
		if err != nil {
			return s, fmt.Errorf("invalid time_budget: %w", err)
		}
		s.TimeBudget = d
	}
	return s, s.Validate()
}

// Load reads a YAML settings file on top of Default. A missing file yields
// the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, s.Validate()
}
