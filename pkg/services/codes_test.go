package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCodeMaps(t *testing.T) {
	codes, err := LoadCodeMaps()
	require.NoError(t, err)

	for _, attr := range []string{"gender", "marital_status", "product_line", "country", "category", "subcategory"} {
		_, ok := codes[attr]
		assert.True(t, ok, "missing lookup table %s", attr)
	}
}

func TestCodeMap_Lookup(t *testing.T) {
	codes := mustCodeMaps(t)

	value, known := codes["gender"].Lookup("F")
	require.True(t, known)
	assert.Equal(t, "Female", *value)

	// Unrecognized code in a table with no default maps to nil.
	value, known = codes["gender"].Lookup("X")
	assert.False(t, known)
	assert.Nil(t, value)

	// Unrecognized code in a table with a default gets the substitute.
	value, known = codes["product_line"].Lookup("Q")
	assert.False(t, known)
	require.NotNil(t, value)
	assert.Equal(t, "Standard", *value)
}
