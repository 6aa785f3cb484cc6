package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name          string
		appURL        string
		isDevelopment bool
		origin        string
		want          bool
	}{
		{"empty origin allowed", "https://app.example.com", false, "", true},
		{"app origin allowed", "https://app.example.com", false, "https://app.example.com", true},
		{"foreign origin rejected", "https://app.example.com", false, "https://evil.example.com", false},
		{"scheme mismatch rejected", "https://app.example.com", false, "http://app.example.com", false},
		{"localhost rejected in production", "https://app.example.com", false, "http://localhost:3000", false},
		{"localhost allowed in development", "https://app.example.com", true, "http://localhost:3000", true},
		{"loopback IP allowed in development", "https://app.example.com", true, "http://127.0.0.1:3000", true},
		{"foreign origin rejected in development", "https://app.example.com", true, "https://evil.example.com", false},
		{"no app URL rejects non-empty origins", "", false, "https://app.example.com", false},
		{"unparseable origin rejected in development", "https://app.example.com", true, "://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewCheckOrigin(tt.appURL, tt.isDevelopment)
			req := httptest.NewRequest("GET", "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(req))
		})
	}
}
