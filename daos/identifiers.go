package daos

import (
	"errors"
	"fmt"
	"unicode"
)

// MaxIdentifierLength bounds table and column names.
const MaxIdentifierLength = 128

// Identifier validation errors.
var (
	ErrEmptyIdentifier   = errors.New("identifier cannot be empty")
	ErrIdentifierTooLong = errors.New("identifier exceeds maximum length")
	ErrInvalidCharacter  = errors.New("identifier contains invalid characters")
)

// ValidateIdentifier validates a table or column name. Identifiers are
// interpolated into bracketed SQL, so only letter/digit/underscore names
// are accepted.
func ValidateIdentifier(name string) error {
	if name == "" {
		return ErrEmptyIdentifier
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrIdentifierTooLong, len(name), MaxIdentifierLength)
	}
	for i, r := range name {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return fmt.Errorf("%w: identifier must start with letter or underscore", ErrInvalidCharacter)
			}
		} else {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
				return fmt.Errorf("%w: %q at position %d", ErrInvalidCharacter, r, i)
			}
		}
	}
	return nil
}

// ValidateTableName validates a table name.
func ValidateTableName(name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return fmt.Errorf("invalid table name %q: %w", name, err)
	}
	return nil
}

// ValidateColumnName validates a column name.
func ValidateColumnName(name string) error {
	if err := ValidateIdentifier(name); err != nil {
		return fmt.Errorf("invalid column name %q: %w", name, err)
	}
	return nil
}
