package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex       = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneCharsRegex  = regexp.MustCompile(`^\+?[0-9\s\-.()]+$`)
	controlCharRegex = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidatePhone accepts international or national numbers with common
// separators and 7 to 15 digits (E.164 upper bound).
func ValidatePhone(phone string) error {
	if !phoneCharsRegex.MatchString(phone) {
		return fmt.Errorf("phone number contains invalid characters: %s", phone)
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return fmt.Errorf("phone number must have 7 to 15 digits, got %d", digits)
	}
	if strings.Count(phone, "+") > 1 {
		return fmt.Errorf("phone number has more than one '+': %s", phone)
	}
	return nil
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlCharRegex.ReplaceAllString(s, "")
}
