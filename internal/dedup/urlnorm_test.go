package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase host", "https://EXAMPLE.com/Path", "https://example.com/Path"},
		{"drop fragment", "https://example.com/a#section", "https://example.com/a"},
		{"trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"root keeps slash", "https://example.com/", "https://example.com/"},
		{"empty path becomes root", "https://example.com", "https://example.com/"},
		{"sort query", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"strip utm", "https://example.com/a?utm_source=x&utm_medium=y&id=3", "https://example.com/a?id=3"},
		{"strip click ids", "https://example.com/a?gclid=1&fbclid=2", "https://example.com/a"},
		{"uppercase tracking key", "https://example.com/a?UTM_Campaign=z", "https://example.com/a"},
		{"default port", "https://example.com:443/a", "https://example.com/a"},
		{"custom port kept", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"scheme case", "HTTPS://example.com/a", "https://example.com/a"},
		{"bare question mark", "https://example.com/a?", "https://example.com/a"},
		{"only tracking params", "https://example.com/a?utm_source=x", "https://example.com/a"},
		{"encoded slash kept", "https://example.com/a%2Fb", "https://example.com/a%2Fb"},
		{"lowercase encoded slash", "https://example.com/a%2fb/c", "https://example.com/a%2Fb/c"},
		{"unreserved escape decoded", "https://example.com/%7Euser", "https://example.com/~user"},
		{"space stays escaped", "https://example.com/a%20b", "https://example.com/a%20b"},
		{"not a url", "  just text  ", "just text"},
		{"relative", "/news/1", "/news/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.input))
		})
	}
}

func TestNormalizeURL_EquivalentVariants(t *testing.T) {
	variants := []string{
		"https://news.example.com/story/42",
		"https://NEWS.example.com/story/42/",
		"https://news.example.com/story/42#comments",
		"https://news.example.com/story/42?utm_source=twitter&utm_campaign=launch",
		"https://news.example.com/story/42/?fbclid=abc#top",
	}

	want := NormalizeURL(variants[0])
	for _, v := range variants[1:] {
		assert.Equal(t, want, NormalizeURL(v), v)
		assert.Equal(t, HashURL(variants[0]), HashURL(v), v)
	}
}

func TestNormalizeURL_EncodedSlashIsDistinct(t *testing.T) {
	assert.NotEqual(t, NormalizeURL("https://example.com/a%2Fb"), NormalizeURL("https://example.com/a/b"))
	assert.Equal(t, NormalizeURL("https://example.com/a?"), NormalizeURL("https://example.com/a"))
}

func TestHashURL(t *testing.T) {
	h := HashURL("https://example.com/a")
	assert.Len(t, h, 40)
	assert.NotEqual(t, h, HashURL("https://example.com/b"))
}
