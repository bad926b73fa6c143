package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		in    string
		owner string
		name  string
		host  string
	}{
		{"acme/site", "acme", "site", "github.com"},
		{" acme/site.git ", "acme", "site", "github.com"},
		{"https://github.com/acme/site", "acme", "site", "github.com"},
		{"https://github.com/acme/site.git/", "acme", "site", "github.com"},
		{"git@github.com:acme/site.git", "acme", "site", "github.com"},
		{"ghe.example.com/acme/site", "acme", "site", "ghe.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := ParseRepoRef(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.owner, ref.Owner)
			assert.Equal(t, tt.name, ref.Name)
			assert.Equal(t, tt.host, ref.Host)
		})
	}
}

func TestParseRepoRef_Invalid(t *testing.T) {
	for _, in := range []string{"", "site", "a/b/c/d", "https://", "git@github.com", "/site"} {
		_, err := ParseRepoRef(in)
		assert.Error(t, err, in)
	}
}

func TestRepoRef_CloneURL(t *testing.T) {
	ref, err := ParseRepoRef("acme/site")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/site.git", ref.CloneURL())
	assert.Equal(t, "acme/site", ref.String())
	assert.True(t, RepoRef{}.IsZero())
}
