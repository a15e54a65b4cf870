package security

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const MinPasswordLength = 8

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"1234567890":  {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"iloveyou":    {},
	"admin123":    {},
	"welcome1":    {},
	"letmein1":    {},
	"abc12345":    {},
	"11111111":    {},
	"sunshine":    {},
	"football":    {},
	"baseball":    {},
	"trustno1":    {},
	"passw0rd":    {},
	"changeme":    {},
}

type StrengthResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
	Score   int      `json:"score"`
}

// ValidatePasswordStrength gates on length and the blocklist. Character
// classes only contribute to Score.
func ValidatePasswordStrength(password string) StrengthResult {
	var res StrengthResult
	if utf8.RuneCountInString(password) < MinPasswordLength {
		res.Errors = append(res.Errors, "password must be at least 8 characters long")
	}
	if _, blocked := commonPasswords[strings.ToLower(password)]; blocked {
		res.Errors = append(res.Errors, "password is too common")
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	for _, ok := range []bool{upper, lower, digit, symbol} {
		if ok {
			res.Score++
		}
	}
	if utf8.RuneCountInString(password) >= 12 {
		res.Score++
	}
	res.IsValid = len(res.Errors) == 0
	return res
}
