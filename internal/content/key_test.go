package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageKeyValidate(t *testing.T) {
	valid := []PageKey{
		{"landing", "home", "en"},
		{"blog-post", "2026_launch", "pt-BR"},
		{"landing", "home", "zh-Hant"},
	}
	for _, k := range valid {
		assert.NoError(t, k.Validate(), k.String())
	}

	invalid := []PageKey{
		{"", "home", "en"},
		{"Landing", "home", "en"},
		{"landing", "../etc", "en"},
		{"landing", "home", ""},
		{"landing", "home", "not a locale"},
		{"landing", "home", "en/../x"},
	}
	for _, k := range invalid {
		assert.Error(t, k.Validate(), k.String())
	}
}

func TestParsePageKey(t *testing.T) {
	k, err := ParsePageKey("landing/home/es")
	require.NoError(t, err)
	assert.Equal(t, PageKey{ContentType: "landing", Slug: "home", Locale: "es"}, k)
	assert.Equal(t, "landing/home/es", k.String())

	_, err = ParsePageKey("landing/home")
	assert.Error(t, err)
}

func TestValidateVariant(t *testing.T) {
	assert.NoError(t, ValidateVariant(""))
	assert.NoError(t, ValidateVariant("promo-b"))
	assert.Error(t, ValidateVariant("../b"))
}
