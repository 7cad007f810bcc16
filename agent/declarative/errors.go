package declarative

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDefinitionNotFound is returned when no definition file exists for an id.
var ErrDefinitionNotFound = errors.New("definition not found")

// ValidationError reports schema violations in a definition file. Parse
// errors are returned as plain wrapped errors instead.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid definition %s: %s", e.Path, strings.Join(e.Issues, "; "))
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
