package ticketing

import (
	"fmt"
	"strings"
)

const (
	// MaxSubjectLength is the upper bound on the ticket subject.
	MaxSubjectLength = 256

	// MinDescriptionLength is the lower bound on the ticket description.
	MinDescriptionLength = 10

	// MaxDescriptionLength is the upper bound on the ticket description.
	MaxDescriptionLength = 1024
)

// ValidateSubject trims and bounds-checks the subject. Required, at most
// MaxSubjectLength characters.
func ValidateSubject(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", &ValidationError{Field: "subject", Message: "Subject is required."}
	}
	if len([]rune(s)) > MaxSubjectLength {
		return "", &ValidationError{
			Field:   "subject",
			Message: fmt.Sprintf("Subject must be %d characters or less.", MaxSubjectLength),
		}
	}
	return s, nil
}

// ValidateDescription trims and bounds-checks the description. Required,
// between MinDescriptionLength and MaxDescriptionLength characters.
func ValidateDescription(input string) (string, error) {
	s := strings.TrimSpace(input)
	if len([]rune(s)) < MinDescriptionLength {
		return "", &ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("Please provide at least %d characters.", MinDescriptionLength),
		}
	}
	if len([]rune(s)) > MaxDescriptionLength {
		return "", &ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("Description must be %d characters or less.", MaxDescriptionLength),
		}
	}
	return s, nil
}
