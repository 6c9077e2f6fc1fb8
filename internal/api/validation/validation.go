package validation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hugh/go-identity/internal/database/models"
	"github.com/nyaruka/phonenumbers"
)

var (
	// EmailRegex validates email format
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// UUIDRegex validates UUID format
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// Usernames are printable without whitespace.
	usernameRegex = regexp.MustCompile(`^[^\s]{1,64}$`)
)

// IsValidEmail checks if the string is a valid email format
func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// IsValidUUID checks if the string is a valid UUID format
func IsValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

func IsValidUsername(username string) bool {
	return usernameRegex.MatchString(username)
}

// IsValidPhone accepts numbers in international format, e.g. "+4722334455".
func IsValidPhone(phone string) bool {
	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

// NormalizePhone formats a valid number as E.164; invalid input is returned unchanged.
func NormalizePhone(phone string) string {
	num, err := phonenumbers.Parse(phone, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return phone
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// IsAssignableRole reports whether role can be stored in a group. The reset role cannot.
func IsAssignableRole(role string) bool {
	switch role {
	case models.RoleAdmin, models.RoleUser, models.RoleService:
		return true
	default:
		return false
	}
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// TruncateString truncates a string to maxLen characters, never splitting a UTF-8 sequence.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}
