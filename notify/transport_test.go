package notify

import (
	"strings"
	"testing"
)

func TestDeriveSocketURL(t *testing.T) {
	tests := []struct {
		name    string
		apiBase string
		want    string
	}{
		{"plain http", "http://localhost:8080/api/v1", "ws://localhost:8080/ws"},
		{"https upgrades to wss", "https://quantify.example.com/api/v1", "wss://quantify.example.com/ws"},
		{"query and fragment dropped", "http://host:9090/api/v1?debug=1#top", "ws://host:9090/ws"},
		{"root path", "https://host", "wss://host/ws"},
		{"unparsable falls back", "://bad", "ws://127.0.0.1:8080/ws"},
		{"empty falls back", "", "ws://127.0.0.1:8080/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveSocketURL(tt.apiBase); got != tt.want {
				t.Errorf("DeriveSocketURL(%q) = %q, want %q", tt.apiBase, got, tt.want)
			}
		})
	}
}

func TestSocketURLWithToken(t *testing.T) {
	got, err := socketURLWithToken("ws://localhost:8080/ws", "tok-123")
	if err != nil {
		t.Fatalf("socketURLWithToken: %v", err)
	}
	if got != "ws://localhost:8080/ws?token=tok-123" {
		t.Errorf("unexpected url %q", got)
	}
}

func TestSocketURLWithTokenEscapes(t *testing.T) {
	got, err := socketURLWithToken("ws://localhost:8080/ws", "a b&c")
	if err != nil {
		t.Fatalf("socketURLWithToken: %v", err)
	}
	if strings.Contains(got, " ") || strings.Contains(got, "b&c") {
		t.Errorf("token must be query-escaped, got %q", got)
	}
}
