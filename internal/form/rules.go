package form

import (
	"github.com/go-playground/validator/v10"
)

// Field names shared by the create and edit user forms.
const (
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
	FieldUsername  = "username"
	FieldPassword  = "password"
	FieldPhone     = "phone"
	FieldEmail     = "email"
)

// MsgInvalidEmail is reported for a non-empty email that fails the shape check.
const MsgInvalidEmail = "Enter a valid email address"

// Values maps a field name to its current string value.
type Values map[string]string

// Errors maps a field name to a human-readable error message.
// A field without a key has no error.
type Errors map[string]string

// Options toggles context-dependent rules.
type Options struct {
	// IncludePassword makes the password field required (create forms).
	IncludePassword bool
}

type requiredField struct {
	name  string
	label string
}

// requiredFields is ordered so that callers iterating it get a stable layout.
var requiredFields = []requiredField{
	{FieldFirstName, "First name"},
	{FieldLastName, "Last name"},
	{FieldUsername, "Username"},
	{FieldPhone, "Phone number"},
}

var passwordField = requiredField{FieldPassword, "Password"}

var validate = validator.New()

// ValidateUser applies the user form rule set to values and returns the
// resulting errors. The result is never nil; an empty map means valid.
func ValidateUser(values Values, opts Options) Errors {
	errs := make(Errors)

	fields := requiredFields
	if opts.IncludePassword {
		fields = append(fields[:len(fields):len(fields)], passwordField)
	}
	for _, f := range fields {
		if values[f.name] == "" {
			errs[f.name] = f.label + " is required"
		}
	}

	if email := values[FieldEmail]; email != "" && !IsEmail(email) {
		errs[FieldEmail] = MsgInvalidEmail
	}

	return errs
}

// IsEmail reports whether s has the shape of an email address.
func IsEmail(s string) bool {
	return validate.Var(s, "email") == nil
}

// Labels returns the display label for every known field.
func Labels() map[string]string {
	m := make(map[string]string, len(requiredFields)+2)
	for _, f := range requiredFields {
		m[f.name] = f.label
	}
	m[passwordField.name] = passwordField.label
	m[FieldEmail] = "Email"
	return m
}
