package engine

import (
	"strings"
	"testing"
)

func TestNewBrowserClient(t *testing.T) {
	bc, err := NewBrowserClient()
	if err != nil {
		t.Fatalf("NewBrowserClient() error = %v", err)
	}
	if bc == nil {
		t.Fatal("NewBrowserClient() returned nil")
	}
	if bc.client == nil {
		t.Fatal("BrowserClient.client is nil")
	}
}

func TestGetChannelPage_HasExpectedSignature(t *testing.T) {
	bc, err := NewBrowserClient()
	if err != nil {
		t.Fatalf("NewBrowserClient() error = %v", err)
	}
	if bc.client == nil {
		t.Fatal("BrowserClient.client is nil")
	}
	// GetChannelPage is a thin wrapper over Do with ChromeHeaders(); the
	// dedicated transport dial isn't exercised here (no network access in
	// unit tests), just that construction succeeds and the method exists
	// with the expected signature.
	var _ func(string) ([]byte, int, error) = bc.GetChannelPage
}

func TestChromeHeaders(t *testing.T) {
	h := ChromeHeaders()

	required := []string{"accept", "accept-language", "user-agent"}
	for _, key := range required {
		if _, ok := h[key]; !ok {
			t.Errorf("ChromeHeaders() missing key %q", key)
		}
	}

	ua := h["user-agent"]
	if ua == "" {
		t.Error("user-agent is empty")
	}
	// Should contain Chrome identifier
	if !strings.Contains(ua, "Chrome/") {
		t.Errorf("user-agent lacks a Chrome identifier: %q", ua)
	}
	if len(ua) < 20 {
		t.Errorf("user-agent too short: %q", ua)
	}
}
