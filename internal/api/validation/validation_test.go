package validation

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid_simple", "user@example.com", true},
		{"valid_subdomain", "user@mail.example.com", true},
		{"valid_plus", "user+tag@example.com", true},
		{"valid_dash", "user-name@example.com", true},
		{"valid_dot", "user.name@example.com", true},
		{"valid_numbers", "user123@example456.com", true},
		{"invalid_no_at", "userexample.com", false},
		{"invalid_no_domain", "user@", false},
		{"invalid_no_user", "@example.com", false},
		{"invalid_double_at", "user@@example.com", false},
		{"invalid_spaces", "user @example.com", false},
		{"invalid_no_tld", "user@example", false},
		{"too_long", "a" + string(make([]byte, 250)) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidEmail(tt.email)
			assert.Equal(t, tt.valid, result, "Email: %s", tt.email)
		})
	}
}

func TestIsValidUUID(t *testing.T) {
	tests := []struct {
		name  string
		uuid  string
		valid bool
	}{
		{"valid_uuid", "550e8400-e29b-41d4-a716-446655440000", true},
		{"valid_uppercase", "550E8400-E29B-41D4-A716-446655440000", true},
		{"valid_mixed", "550e8400-E29B-41d4-A716-446655440000", true},
		{"invalid_short", "550e8400-e29b-41d4-a716", false},
		{"invalid_long", "550e8400-e29b-41d4-a716-446655440000-extra", false},
		{"invalid_no_dashes", "550e8400e29b41d4a716446655440000", false},
		{"invalid_wrong_format", "550e8400-e29b-41d4a716-446655440000", false},
		{"invalid_letters", "ggge8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidUUID(tt.uuid)
			assert.Equal(t, tt.valid, result, "UUID: %s", tt.uuid)
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean_text", "Hello World", "Hello World"},
		{"null_bytes", "Hello\x00World", "HelloWorld"},
		{"control_chars", "Hello\x01\x02World", "HelloWorld"},
		{"keep_newlines", "Hello\nWorld", "Hello\nWorld"},
		{"keep_tabs", "Hello\tWorld", "Hello\tWorld"},
		{"keep_carriage_return", "Hello\rWorld", "Hello\rWorld"},
		{"mixed", "Hello\x00\x01\nWorld\t!", "Hello\nWorld\t!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"shorter_than_max", "Hello", 10, "Hello"},
		{"equal_to_max", "Hello", 5, "Hello"},
		{"longer_than_max", "Hello World", 5, "Hello"},
		{"empty", "", 10, ""},
		{"zero_max", "Hello", 0, ""},
		{"multibyte_boundary", "abé", 3, "abé"},
		{"multibyte_cut", "ééé", 2, "éé"},
		{"cjk", "日本語テキスト", 3, "日本語"},
		{"emoji", "hi 😀!", 4, "hi 😀"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateString(tt.input, tt.maxLen)
			assert.Equal(t, tt.expected, result)
			assert.True(t, utf8.ValidString(result))
		})
	}
}

func TestIsValidUsername(t *testing.T) {
	assert.True(t, IsValidUsername("alice"))
	assert.True(t, IsValidUsername("alice.smith@corp"))
	assert.False(t, IsValidUsername(""))
	assert.False(t, IsValidUsername("alice smith"))
	assert.False(t, IsValidUsername(string(make([]byte, 65))))
}

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		valid bool
	}{
		{"valid_us", "+16502530000", true},
		{"valid_ch_spaced", "+41 44 668 18 00", true},
		{"invalid_no_country", "6502530000", false},
		{"invalid_short", "+1 000", false},
		{"invalid_text", "not-a-phone", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidPhone(tt.phone), "Phone: %s", tt.phone)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+41446681800", NormalizePhone("+41 44 668 18 00"))
	assert.Equal(t, "garbage", NormalizePhone("garbage"))
}

func TestIsAssignableRole(t *testing.T) {
	assert.True(t, IsAssignableRole("admin"))
	assert.True(t, IsAssignableRole("user"))
	assert.True(t, IsAssignableRole("service"))
	assert.False(t, IsAssignableRole("forgot_password"))
	assert.False(t, IsAssignableRole("owner"))
	assert.False(t, IsAssignableRole(""))
}
