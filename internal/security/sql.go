// Package security provides input hardening helpers for Makazi
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// validIdentifier matches plain lowercase column names, optionally table-qualified
var validIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// ValidateIdentifier checks that a column name is safe to splice into SQL
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("identifier too long (max 63 characters)")
	}
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// EscapeLikePattern escapes special characters in LIKE patterns
func EscapeLikePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `%`, `\%`)
	pattern = strings.ReplaceAll(pattern, `_`, `\_`)
	return pattern
}

// SearchCondition builds a case-insensitive substring match over columns
// for gorm's Where. Invalid column names are skipped. It works on postgres
// and sqlite alike.
func SearchCondition(columns []string, term string) (string, []interface{}) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return "", nil
	}

	param := "%" + strings.ToLower(EscapeLikePattern(term)) + "%"
	conditions := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		if ValidateIdentifier(col) != nil {
			continue
		}
		conditions = append(conditions, fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col))
		args = append(args, param)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "(" + strings.Join(conditions, " OR ") + ")", args
}
