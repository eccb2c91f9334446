package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditMarkerSaveRoundTrip(t *testing.T) {
	encoded := EncodeEditSave("new room description")
	saved, content, isMarker := DecodeEditMarker(encoded)
	assert.True(t, isMarker)
	assert.True(t, saved)
	assert.Equal(t, "new room description", content)
}

func TestEditMarkerCancelRoundTrip(t *testing.T) {
	encoded := EncodeEditCancel()
	saved, content, isMarker := DecodeEditMarker(encoded)
	assert.True(t, isMarker)
	assert.False(t, saved)
	assert.Empty(t, content)
}

func TestDecodeEditMarkerRejectsOrdinaryInput(t *testing.T) {
	_, _, isMarker := DecodeEditMarker("look")
	assert.False(t, isMarker)
}

func TestEditMarkerSavePreservesEmbeddedNewlines(t *testing.T) {
	encoded := EncodeEditSave("line one\nline two")
	saved, content, isMarker := DecodeEditMarker(encoded)
	assert.True(t, isMarker)
	assert.True(t, saved)
	assert.Equal(t, "line one\nline two", content)
}
