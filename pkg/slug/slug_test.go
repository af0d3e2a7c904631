package slug

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Hello World", "hello-world"},
		{"accents", "Café Déjà Vu", "cafe-deja-vu"},
		{"punctuation", "iPhone 17: what's new?", "iphone-17-what-s-new"},
		{"collapse", "a  --  b", "a-b"},
		{"trim", "  !!Launch!!  ", "launch"},
		{"empty", "", ""},
		{"symbols only", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, From(tt.input))
		})
	}
}

func TestFrom_Truncates(t *testing.T) {
	got := From(strings.Repeat("word ", 60))
	assert.LessOrEqual(t, len(got), maxLength)
	assert.False(t, strings.HasSuffix(got, "-"))
}

func TestWithTimestamp(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	assert.Equal(t, "new-gpu-1700000000123", WithTimestamp("New GPU", at))
	assert.Equal(t, "untitled-1700000000123", WithTimestamp("???", at))
}
