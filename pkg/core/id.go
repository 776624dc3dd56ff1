package core

import (
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/fluxorio/eventa/pkg/core/failfast"
)

const (
	idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	idLength   = 16
)

// NewID returns a random 16 character alphanumeric identifier.
// Used for anonymous tags, invokeIds and envelope ids.
func NewID() string {
	id, err := gonanoid.Generate(idAlphabet, idLength)
	failfast.Err(err)
	return id
}
