// Package validation checks identity numbers and submitted form fields.
// The browser script served at /static/validation.js is rendered from the
// same patterns by ClientScript.
package validation

import (
	"regexp"
	"strings"
)

const (
	NationalIDDigits = 20
	PhoneDigits      = 10

	NationalIDError = "NIDA number must be exactly 20 digits"
	PhoneError      = "Phone number must be exactly 10 digits"

	FieldNationalID = "nida_number"
	FieldPhone      = "phone"
)

// Separators removed before matching. Only ASCII whitespace counts so the
// browser script, which gets the same sets, cleans input identically.
const (
	blankChars      = " \t\n\v\f\r"
	nationalIDStrip = blankChars + "-"
	phoneStrip      = blankChars + "-+"
)

var (
	nationalIDPattern = regexp.MustCompile(`^[0-9]{20}$`)
	phonePattern      = regexp.MustCompile(`^[0-9]{10}$`)
)

// Result is the outcome of a single field check. Cleaned holds the input
// with separators stripped whether or not it is valid.
type Result struct {
	Valid   bool   `json:"valid"`
	Cleaned string `json:"cleaned"`
	Error   string `json:"error,omitempty"`
}

// FormResult is the outcome of ValidateFormData
type FormResult struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors"`
	Data   map[string]string `json:"data"`
}

// ValidateNationalID strips whitespace and dashes and requires 20 digits
func ValidateNationalID(raw string) Result {
	cleaned := strip(raw, nationalIDStrip)
	if !nationalIDPattern.MatchString(cleaned) {
		return Result{Cleaned: cleaned, Error: NationalIDError}
	}
	return Result{Valid: true, Cleaned: cleaned}
}

// ValidatePhoneNumber strips whitespace, dashes and plus signs and requires
// 10 digits
func ValidatePhoneNumber(raw string) Result {
	cleaned := strip(raw, phoneStrip)
	if !phonePattern.MatchString(cleaned) {
		return Result{Cleaned: cleaned, Error: PhoneError}
	}
	return Result{Valid: true, Cleaned: cleaned}
}

// ValidateFormData checks the identity fields when they are filled in, then
// every required field. A missing-field message never replaces a format
// error already recorded for the same key.
func ValidateFormData(fields map[string]string, required []string) FormResult {
	res := FormResult{
		Errors: make(map[string]string),
		Data:   make(map[string]string, len(fields)),
	}
	for k, v := range fields {
		res.Data[k] = v
	}

	checks := []struct {
		field string
		fn    func(string) Result
	}{
		{FieldNationalID, ValidateNationalID},
		{FieldPhone, ValidatePhoneNumber},
	}
	for _, c := range checks {
		v, ok := fields[c.field]
		if !ok || isBlank(v) {
			continue
		}
		if r := c.fn(v); r.Valid {
			res.Data[c.field] = r.Cleaned
		} else {
			res.Errors[c.field] = r.Error
		}
	}

	for _, name := range required {
		if _, exists := res.Errors[name]; exists {
			continue
		}
		if isBlank(fields[name]) {
			res.Errors[name] = RequiredMessage(name)
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// RequiredMessage renders "<Field Name> is required" for a field key
func RequiredMessage(field string) string {
	return Humanize(field) + " is required"
}

// Humanize turns a snake_case key into title-cased words. Only ASCII
// letters are capitalised.
func Humanize(field string) string {
	words := strings.FieldsFunc(field, func(r rune) bool {
		return r == '_' || strings.ContainsRune(blankChars, r)
	})
	for i, w := range words {
		if c := w[0]; c >= 'a' && c <= 'z' {
			words[i] = string(c-'a'+'A') + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func isBlank(v string) bool {
	return strings.Trim(v, blankChars) == ""
}

func strip(raw, set string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(set, r) {
			return -1
		}
		return r
	}, raw)
}
