package middleware

import (
	"strings"
	"testing"
)

func TestValidatePostID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantID  string
		wantErr bool
	}{
		{"valid short", "q48291", "q48291", false},
		{"valid with dash", "post-123_a", "post-123_a", false},
		{"trims whitespace", "  p1  ", "p1", false},
		{"empty", "", "", true},
		{"exactly 32", strings.Repeat("a", 32), strings.Repeat("a", 32), false},
		{"too long", strings.Repeat("a", 33), "", true},
		{"invalid chars", "p 1", "", true},
		{"sql injection", "p'; DROP--", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errMsg := ValidatePostID(tt.input)
			if tt.wantErr && errMsg == "" {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && errMsg != "" {
				t.Errorf("unexpected error: %s", errMsg)
			}
			if got != tt.wantID {
				t.Errorf("got %q, want %q", got, tt.wantID)
			}
		})
	}
}

func TestValidateAnswerID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantID  string
		wantErr bool
	}{
		{"valid", "a1", "a1", false},
		{"empty is allowed", "", "", false},
		{"whitespace only is empty", "   ", "", false},
		{"too long", strings.Repeat("a", 33), "", true},
		{"invalid chars", "a/1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errMsg := ValidateAnswerID(tt.input)
			if tt.wantErr && errMsg == "" {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && errMsg != "" {
				t.Errorf("unexpected error: %s", errMsg)
			}
			if got != tt.wantID {
				t.Errorf("got %q, want %q", got, tt.wantID)
			}
		})
	}
}

func TestValidateLabelName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid", "insightful", "insightful", false},
		{"case preserved", "Insightful", "Insightful", false},
		{"spaces inside allowed", "well sourced", "well sourced", false},
		{"unicode allowed", "précis", "précis", false},
		{"trims whitespace", "  clear  ", "clear", false},
		{"empty", "", "", true},
		{"exactly 64 bytes", strings.Repeat("x", 64), strings.Repeat("x", 64), false},
		{"too long", strings.Repeat("x", 65), "", true},
		{"control chars", "a\x00b", "", true},
		{"newline", "a\nb", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errMsg := ValidateLabelName(tt.input)
			if tt.wantErr && errMsg == "" {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && errMsg != "" {
				t.Errorf("unexpected error: %s", errMsg)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valid hex", "abc123def456", "abc123def456", false},
		{"uppercase normalized", "ABC123", "abc123", false},
		{"trims whitespace", " abc123 ", "abc123", false},
		{"empty", "", "", true},
		{"too long", strings.Repeat("a", 65), "", true},
		{"non-hex", "xyz123", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errMsg := ValidateUserID(tt.input)
			if tt.wantErr && errMsg == "" {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && errMsg != "" {
				t.Errorf("unexpected error: %s", errMsg)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
