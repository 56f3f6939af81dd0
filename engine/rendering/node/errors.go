package node

import "github.com/pkg/errors"

var (
	// ErrInvalidKey is raised when a key does not address a column of the holder it is used with.
	ErrInvalidKey = errors.New("node: invalid property key")

	// ErrKeyTypeMismatch is raised when a key's element type differs from the column it addresses.
	ErrKeyTypeMismatch = errors.New("node: property key element type mismatch")

	// ErrDataTypeMismatch is raised when a property definition is reused with another data type.
	ErrDataTypeMismatch = errors.New("node: property definition reused with another data type")
)
