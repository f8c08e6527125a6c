package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveImageURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		raw  string
		want string
	}{
		{"relative with slash", "https://host", "/img/a.png", "https://host/img/a.png"},
		{"relative without slash", "https://host", "img/a.png", "https://host/img/a.png"},
		{"base with trailing slash", "https://host/", "/img/a.png", "https://host/img/a.png"},
		{"absolute https", "https://host", "https://cdn/x.png", "https://cdn/x.png"},
		{"absolute http", "https://host", "http://cdn/x.png", "http://cdn/x.png"},
		{"upper-case scheme", "https://host", "HTTPS://CDN/x.png", "HTTPS://CDN/x.png"},
		{"other scheme", "https://host", "data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
		{"relative name starting with http", "https://host", "http-banner.png", "https://host/http-banner.png"},
		{"relative dir starting with http", "https://host", "/https/banner.png", "https://host/https/banner.png"},
		{"empty", "https://host", "", ""},
		{"whitespace", "https://host", "  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveImageURL(tt.base, tt.raw))
		})
	}
}
