package templates

import (
	"fmt"
	"regexp"

	"github.com/aussiebroadwan/printq/internal/report/domain"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateName rejects anything other than 1-64 letters, digits, '-' or '_'.
// Names are checked before they are ever joined into a path.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid template name %q", domain.ErrValidation, name)
	}
	return nil
}
