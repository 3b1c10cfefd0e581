package net

import (
	"testing"
)

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
	}{
		{"10.0.0.1:9638", "10.0.0.1", 9638},
		{":9638", "", 9638},
		{"localhost:0", "localhost", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, err := SplitHostPort(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if host != tt.host || port != tt.port {
				t.Fatalf("SplitHostPort(%q) = %q, %d", tt.in, host, port)
			}
		})
	}
}

func TestSplitHostPortMissingPort(t *testing.T) {
	if _, _, err := SplitHostPort("10.0.0.1"); err == nil {
		t.Fatal("expected error for address without port")
	}
}
