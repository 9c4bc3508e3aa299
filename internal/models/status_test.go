package models

import (
	"testing"
)

func TestNormalizeConnectionStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ConnectionStatus
	}{
		{
			name:     "exact match",
			input:    "PAIRED",
			expected: ConnectionStatusPaired,
		},
		{
			name:     "lowercase",
			input:    "processing",
			expected: ConnectionStatusProcessing,
		},
		{
			name:     "surrounding whitespace",
			input:    "  expired  ",
			expected: ConnectionStatusExpired,
		},
		{
			name:     "empty string",
			input:    "",
			expected: ConnectionStatusUnknown,
		},
		{
			name:     "unmatched value",
			input:    "REBOOTING",
			expected: ConnectionStatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeConnectionStatus(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeConnectionStatus(%q) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeOnlineStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected OnlineStatus
	}{
		{
			name:     "online",
			input:    "ONLINE",
			expected: OnlineStatusOnline,
		},
		{
			name:     "offline mixed case",
			input:    "Offline",
			expected: OnlineStatusOffline,
		},
		{
			name:     "unmatched value",
			input:    "SLEEPING",
			expected: OnlineStatusUnknown,
		},
		{
			name:     "empty string",
			input:    "",
			expected: OnlineStatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeOnlineStatus(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeOnlineStatus(%q) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeActivityStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ActivityStatus
	}{
		{
			name:     "underscored",
			input:    "WAITING_FOR_CARD",
			expected: ActivityStatusWaitingForCard,
		},
		{
			name:     "hyphenated",
			input:    "waiting-for-pin",
			expected: ActivityStatusWaitingForPin,
		},
		{
			name:     "spaced",
			input:    "Selecting Tip",
			expected: ActivityStatusSelectingTip,
		},
		{
			name:     "mixed separators",
			input:    " updating - firmware ",
			expected: ActivityStatusUpdatingFirmware,
		},
		{
			name:     "idle",
			input:    "idle",
			expected: ActivityStatusIdle,
		},
		{
			name:     "unmatched value",
			input:    "PRINTING_RECEIPT",
			expected: ActivityStatusUnknown,
		},
		{
			name:     "empty string",
			input:    "",
			expected: ActivityStatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeActivityStatus(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeActivityStatus(%q) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// Normalization must be idempotent: feeding a normalized value back in
// yields the same value.
func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"PAIRED", "processing", "waiting-for-card", "Selecting Tip",
		"ONLINE", "offline", "idle", "garbage value", "", "   ", "- -",
	}

	for _, input := range inputs {
		if got := NormalizeConnectionStatus(string(NormalizeConnectionStatus(input))); got != NormalizeConnectionStatus(input) {
			t.Errorf("connection normalization not idempotent for %q", input)
		}
		if got := NormalizeOnlineStatus(string(NormalizeOnlineStatus(input))); got != NormalizeOnlineStatus(input) {
			t.Errorf("online normalization not idempotent for %q", input)
		}
		if got := NormalizeActivityStatus(string(NormalizeActivityStatus(input))); got != NormalizeActivityStatus(input) {
			t.Errorf("activity normalization not idempotent for %q", input)
		}
	}
}
