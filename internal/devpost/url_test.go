package devpost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan-cs/hackaplan/internal/apperr"
)

func TestNormalizeHackathonURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare subdomain", "example.devpost.com", "https://example.devpost.com"},
		{"http upgraded", "http://example.devpost.com", "https://example.devpost.com"},
		{"trailing slash", "https://example.devpost.com/", "https://example.devpost.com"},
		{"query stripped", "https://example.devpost.com?ref=home", "https://example.devpost.com"},
		{"fragment stripped", "https://example.devpost.com#prizes", "https://example.devpost.com"},
		{"path kept", "https://devpost.com/software/my-project/", "https://devpost.com/software/my-project"},
		{"host lowered", "https://Example.DEVPOST.com", "https://example.devpost.com"},
		{"surrounding space", "  https://example.devpost.com  ", "https://example.devpost.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeHackathonURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeHackathonURLRejections(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"https://example.com",
		"https://devpost.com.evil.com",
		"https://notdevpost.org/hackathon",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := NormalizeHackathonURL(in)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
		})
	}
}

func TestSameHackathon(t *testing.T) {
	assert.True(t, SameHackathon("https://example.devpost.com", "https://example.devpost.com"))
	assert.True(t, SameHackathon("https://example.devpost.com", "https://example.devpost.com/"))
	assert.True(t, SameHackathon("https://devpost.com/hackathons/example", "https://devpost.com/hackathons/example/rules"))
	assert.False(t, SameHackathon("https://example.devpost.com", "https://other.devpost.com"))
	assert.False(t, SameHackathon("https://devpost.com/hackathons/example", "https://devpost.com/hackathons/other"))
}
