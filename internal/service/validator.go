package service

import (
	"regexp"
	"unicode/utf16"

	"authdesk/internal/domain"
)

// MinPasswordLength is the shortest accepted password, counted in UTF-16
// code units the way browsers report string length.
const MinPasswordLength = 6

// emailPattern is "something@something.something" with no whitespace in any
// part. Whitespace here includes Unicode spaces and the BOM.
var emailPattern = regexp.MustCompile(`[^\s\v\p{Z}\x{FEFF}]+@[^\s\v\p{Z}\x{FEFF}]+\.[^\s\v\p{Z}\x{FEFF}]+`)

// Validate checks form against the rules of mode and returns the failures
// keyed by field. An empty result means the form is valid.
func Validate(form domain.FormState, mode domain.Mode) domain.ValidationErrors {
	errs := domain.ValidationErrors{}

	switch {
	case form.Email == "":
		errs[domain.FieldEmail] = "Email is required"
	case !emailPattern.MatchString(form.Email):
		errs[domain.FieldEmail] = "Email is invalid"
	}

	switch {
	case form.Password == "":
		errs[domain.FieldPassword] = "Password is required"
	case passwordLength(form.Password) < MinPasswordLength:
		errs[domain.FieldPassword] = "Password must be at least 6 characters"
	}

	if mode == domain.ModeSignup {
		if form.FullName == "" {
			errs[domain.FieldFullName] = "Full name is required"
		}
		if form.Password != form.ConfirmPassword {
			errs[domain.FieldConfirmPassword] = "Passwords do not match"
		}
		if !form.UserType.Valid() {
			errs[domain.FieldUserType] = "User type is invalid"
		}
	}

	return errs
}

func passwordLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}
