package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// componentValueRE allows numbers, SI suffixes, and brace expressions.
var componentValueRE = regexp.MustCompile(`^[A-Za-z0-9_.{}\-+*/()= ]+$`)

// ValidateComponentValue rejects component value strings that could
// smuggle statements past the line-oriented parser.
func ValidateComponentValue(value string) error {
	switch {
	case value == "":
		return fmt.Errorf("component value must not be empty")
	case strings.ContainsAny(value, "\n\r"):
		return fmt.Errorf("component value must not contain newlines")
	case strings.Contains(value, ";"):
		return fmt.Errorf("component value must not contain semicolons")
	case strings.Contains(value, "`"):
		return fmt.Errorf("component value must not contain backticks")
	case strings.HasPrefix(strings.TrimSpace(value), "."):
		return fmt.Errorf("component value must not start with '.'")
	case !componentValueRE.MatchString(value):
		return fmt.Errorf("component value %q contains disallowed characters", value)
	}
	return nil
}

// ValidateFilename rejects filenames carrying path separators or
// traversal sequences.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("filename must not be empty")
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("invalid filename %q: must not contain path separators", name)
	case strings.Contains(name, ".."):
		return fmt.Errorf("invalid filename %q: must not contain '..'", name)
	}
	return nil
}
