package util

import (
	"testing"
	"time"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	if got := NormalizeEmail("  Reader@Example.COM \n"); got != "reader@example.com" {
		t.Fatalf("NormalizeEmail = %q, want %q", got, "reader@example.com")
	}
}

func TestMaskEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		email    string
		expected string
	}{
		{name: "regular address", email: "reader@example.com", expected: "r***r@example.com"},
		{name: "short local part", email: "ab@example.com", expected: "a***@example.com"},
		{name: "missing at sign", email: "not-an-email", expected: "***"},
		{name: "empty local part", email: "@example.com", expected: "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := MaskEmail(tt.email); got != tt.expected {
				t.Fatalf("MaskEmail(%q) = %s, want %s", tt.email, got, tt.expected)
			}
		})
	}
}

func TestHashCode(t *testing.T) {
	t.Parallel()

	if HashCode("123456") != HashCode("123456") {
		t.Fatal("HashCode is not deterministic")
	}
	if HashCode("123456") == HashCode("123457") {
		t.Fatal("HashCode collides on different codes")
	}
	if len(HashCode("000000")) != 64 {
		t.Fatalf("HashCode length = %d, want 64", len(HashCode("000000")))
	}
}

func TestConstantTimeEqual(t *testing.T) {
	t.Parallel()

	if !ConstantTimeEqual("abc", "abc") {
		t.Fatal("equal strings reported different")
	}
	if ConstantTimeEqual("abc", "abd") || ConstantTimeEqual("abc", "ab") {
		t.Fatal("different strings reported equal")
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "under one minute", duration: 45 * time.Second, expected: "45s"},
		{name: "rounded second to minute", duration: 59*time.Second + 500*time.Millisecond, expected: "1m"},
		{name: "whole minutes", duration: 10 * time.Minute, expected: "10m"},
		{name: "minutes and seconds", duration: 2*time.Minute + 30*time.Second, expected: "2m30s"},
		{name: "hours and minutes", duration: time.Hour + 30*time.Minute, expected: "1h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := FormatDuration(tt.duration); got != tt.expected {
				t.Fatalf("FormatDuration(%s) = %s, want %s", tt.duration, got, tt.expected)
			}
		})
	}
}
