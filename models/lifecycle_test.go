package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Lifecycle
		want     bool
	}{
		{LifecycleUnset, LifecycleSelected, true},
		{LifecycleSelected, LifecycleConverted, true},
		{LifecycleConverted, LifecycleRelinked, true},
		{LifecycleConverted, LifecycleCommitted, false},
		{LifecycleRelinked, LifecycleCommitted, true},
		{LifecycleRelinked, LifecycleSelected, true},
		{LifecycleConvertFailed, LifecycleSelected, true},
		{LifecycleSelected, LifecycleSelected, true},
		{LifecycleUnset, LifecycleRelinked, false},
		{LifecycleCommitted, LifecycleSelected, false},
		{LifecycleCommitted, LifecycleCommitted, false},
		{LifecycleSkippedAnimated, LifecycleSelected, false},
		{LifecycleMetadataFailed, LifecycleRelinked, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestLifecycleHelpers(t *testing.T) {
	assert.Equal(t, "unset", LifecycleUnset.String())
	assert.True(t, LifecycleMetadataFailed.IsFailure())
	assert.False(t, LifecycleRelinked.IsFailure())
	assert.True(t, LifecycleCommitted.IsTerminal())
	assert.False(t, Lifecycle("bogus").Valid())
}
