package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCollection = errors.New("invalid collection")
	ErrNameRequired      = errors.New("name required")
)

// DuplicateNameError is returned when a write would give two records in the
// same owner collection the same case-folded name.
type DuplicateNameError struct {
	Collection Collection
	Name       string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s named %q already exists", singular(e.Collection), e.Name)
}

func singular(c Collection) string {
	switch c {
	case CollectionUsage:
		return "a usage entry"
	case CollectionProfile:
		return "a profile"
	}
	noun := strings.TrimSuffix(string(c), "s")
	if noun == "" {
		return "a record"
	}
	if strings.ContainsRune("aeiou", rune(noun[0])) {
		return "an " + noun
	}
	return "a " + noun
}
