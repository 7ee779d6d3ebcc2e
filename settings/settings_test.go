package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"unknown format", func(s *Settings) { s.TargetFormat = "heic" }, true},
		{"quality zero", func(s *Settings) { s.Quality = 0 }, true},
		{"quality too high", func(s *Settings) { s.AVIFQuality = 101 }, true},
		{"speed out of range", func(s *Settings) { s.AVIFSpeed = 11 }, true},
		{"webp method out of range", func(s *Settings) { s.WebPMethod = 7 }, true},
		{"effort out of range", func(s *Settings) { s.JXLEffort = 0 }, true},
		{"batch size zero", func(s *Settings) { s.BatchSize = 0 }, true},
		{"bad box mode", func(s *Settings) { s.BoundingBoxMode = "fit" }, true},
		{"box without size", func(s *Settings) { s.BoundingBoxEnable = true }, true},
		{"box ok", func(s *Settings) {
			s.BoundingBoxEnable = true
			s.BoundingBoxWidth = 800
		}, false},
		{"jxl", func(s *Settings) { s.TargetFormat = FormatJXL }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			if tt.wantErr {
				assert.Error(t, s.Validate())
			} else {
				assert.NoError(t, s.Validate())
			}
		})
	}
}

func TestQualityFor(t *testing.T) {
	s := Default()
	s.Quality = 80
	s.AVIFQuality = 50
	assert.Equal(t, 80, s.QualityFor(FormatWebP))
	assert.Equal(t, 50, s.QualityFor(FormatAVIF))
	assert.Equal(t, "image/avif", MimeOf(FormatAVIF))
	assert.Equal(t, ".webp", s.Extension())
}

func TestApplyOverrides(t *testing.T) {
	format := "AVIF"
	batch := 3
	validation := false
	budget := "10s"

	s, err := Default().Apply(&Overrides{
		TargetFormat: &format,
		BatchSize:    &batch,
		Validation:   &validation,
		TimeBudget:   &budget,
	})
	require.NoError(t, err)
	assert.Equal(t, FormatAVIF, s.TargetFormat)
	assert.Equal(t, 3, s.BatchSize)
	assert.False(t, s.Validation)
	assert.Equal(t, 10*time.Second, s.TimeBudget)

	zero := 0
	_, err = Default().Apply(&Overrides{BatchSize: &zero})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)

	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_format: jxl\nbatch_size: 25\nskip_folders: |\n  cache\n  private\n"), 0o644))
	s, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatJXL, s.TargetFormat)
	assert.Equal(t, 25, s.BatchSize)
	assert.Equal(t, 75, s.Quality)

	require.NoError(t, os.WriteFile(path, []byte("batch_size: -1\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSkipRules(t *testing.T) {
	s := Default()
	s.SkipFolders = "cache\n/Private/\n2023/**/drafts/*\n"
	s.SkipMimes = "image/gif, image/svg+xml"
	r := s.Rules()

	tests := []struct {
		rel, mime string
		want      bool
	}{
		{"2024/07/cache/b.png", "image/png", true},
		{"2024/07/CACHE/b.png", "image/png", true},
		{"2024/07/b.png", "image/png", false},
		{"2024/private/x.jpg", "image/jpeg", true},
		{"2023/01/drafts/y.jpg", "image/jpeg", true},
		{"2023/drafts/y.jpg", "image/jpeg", true},
		{"2024/01/drafts/y.jpg", "image/jpeg", false},
		{"2024/07/anim.gif", "image/gif", true},
		{"2024/07/anim.gif", "image/GIF", false},
		// substring matching crosses separators
		{"2024/07/ca/che.jpg", "image/jpeg", false},
		{"a/b/xcache/c.jpg", "image/jpeg", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Skip(tt.rel, tt.mime), tt.rel)
	}
}
