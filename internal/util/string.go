package util

import (
	"fmt"
	"regexp"
)

var toolNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func ValidateToolName(name string) error {
	if !toolNameRegex.MatchString(name) {
		return fmt.Errorf("invalid tool name: %q", name)
	}
	return nil
}
