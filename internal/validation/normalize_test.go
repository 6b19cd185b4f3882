package validation

import "testing"

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1234567", "1234567"},
		{"12-34567", "1234567"},
		{"1234-567-8901-2", "123456789012"},
		{"42101-1234567-1", "4210112345671"},
		{"", ""},
		{"abc", ""},
	}

	for _, tt := range tests {
		if got := NormalizeIdentifier(tt.in); got != tt.want {
			t.Fatalf("NormalizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdentifier_Idempotent(t *testing.T) {
	for _, id := range []string{"1234567", "4210112345671"} {
		once := NormalizeIdentifier(id)
		twice := NormalizeIdentifier(once)
		if once != twice || once != id {
			t.Fatalf("normalization of %q not idempotent: %q -> %q", id, once, twice)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"1234567", true},            // 7-digit NTN
		{"4210112345671", true},      // 13-digit CNIC
		{"42101-1234567-1", true},    // CNIC with separators
		{"1234-567-8901-2", false},   // 12 digits
		{"12345678901", false},       // 11 digits
		{"123456", false},            // too short
		{"12345678", false},          // 8 digits
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidIdentifier(tt.in); got != tt.want {
			t.Fatalf("IsValidIdentifier(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsValidHSCode(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"85", true},
		{"8517.12", true},
		{"85171200", true},
		{"8", false},
		{"851712001", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidHSCode(tt.in); got != tt.want {
			t.Fatalf("IsValidHSCode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
