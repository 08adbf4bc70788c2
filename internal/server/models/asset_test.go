package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendUnique(t *testing.T) {
	list := AppendUnique(nil, "clip_medium.mp4")
	list = AppendUnique(list, "clip_fast.webm")
	list = AppendUnique(list, "clip_medium.mp4")

	assert.Equal(t, []string{"clip_medium.mp4", "clip_fast.webm"}, list)
}

func TestAsset_HasVariant(t *testing.T) {
	a := &Asset{Processed: []string{"a.mp4"}}
	assert.True(t, a.HasVariant("a.mp4"))
	assert.False(t, a.HasVariant("b.mp4"))
}
