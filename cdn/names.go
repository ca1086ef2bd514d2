package cdn

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ErmitaVulpe/cookbook/index"
)

const (
	MaxRecipeNameLength = 64
	maxFileNameLength   = 255

	// IconName is the file holding the recipe icon.
	IconName = "icon"
)

// Key returns the identifier used for the index and the directory of a recipe.
func Key(name string) string {
	return strings.ToLower(name)
}

// ValidateRecipeName reports whether name can be used as recipe identifier.
func ValidateRecipeName(name string) error {
	if len(name) > MaxRecipeNameLength {
		return ErrInvalidName
	}
	if err := validateSegment(name); err != nil {
		return err
	}
	if strings.EqualFold(name, index.FileName) {
		return ErrInvalidName
	}

	return nil
}

// ValidateImageName reports whether name can refer to a stored image.
func ValidateImageName(name string) error {
	if len(name) > maxFileNameLength {
		return ErrInvalidName
	}

	return validateSegment(name)
}

// validateSegment accepts a single visible path element.
func validateSegment(name string) error {
	if name == "" || name[0] == '.' || !utf8.ValidString(name) {
		return ErrInvalidName
	}

	for _, r := range name {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return ErrInvalidName
		}
	}

	return nil
}

// recipeKey validates name and returns its identifier. Both forms are checked
// since lowercasing may change the byte length.
func recipeKey(op, name string) (string, error) {
	key := Key(name)
	if ValidateRecipeName(name) != nil || ValidateRecipeName(key) != nil {
		return "", newError(ErrInvalidName, op, name, nil)
	}

	return key, nil
}
