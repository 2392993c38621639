package bot

import (
	"fmt"
	"strings"

	"gift-circle/internal/apperr"

	"github.com/go-playground/validator/v10"
)

const (
	maxDisplayNameLength = 50
	maxMessageLength     = 500
)

var validate = validator.New()

// validateDisplayName collapses inner whitespace and checks the length in
// characters, not bytes.
func validateDisplayName(text string) (string, error) {
	name := strings.Join(strings.Fields(text), " ")
	if err := validate.Var(name, fmt.Sprintf("min=1,max=%d", maxDisplayNameLength)); err != nil {
		return "", apperr.InvalidArg(fmt.Sprintf("Name must be between 1 and %d characters.", maxDisplayNameLength))
	}
	return name, nil
}

// validateMessageBody trims the body but keeps its line breaks.
func validateMessageBody(text string) (string, error) {
	body := strings.TrimSpace(text)
	if err := validate.Var(body, fmt.Sprintf("min=1,max=%d", maxMessageLength)); err != nil {
		return "", apperr.InvalidArg(fmt.Sprintf("Message must be between 1 and %d characters.", maxMessageLength))
	}
	return body, nil
}
