package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j****@acme.test", MaskEmail(" jane@acme.test "))
	assert.Equal(t, "", MaskEmail(""))
	assert.Equal(t, "****", MaskEmail("@acme"))
}

func TestMaskJSON(t *testing.T) {
	got := MaskJSON(map[string]any{
		"to":           "owner@studio.test",
		"cronSecret":   "abcdefghijkl",
		"subscription": "sub_1",
		"nested":       map[string]any{"ownerEmail": "bo@x.io"},
		"":             "dropped",
	})

	assert.Equal(t, map[string]any{
		"to":           "o****@studio.test",
		"cronSecret":   "****ijkl",
		"subscription": "sub_1",
		"nested":       map[string]any{"ownerEmail": "b****@x.io"},
	}, got)
	assert.Nil(t, MaskJSON(nil))
}
