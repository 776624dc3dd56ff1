package core

import (
	"encoding/json"

	"github.com/fluxorio/eventa/pkg/core/failfast"
)

// Tag identifies one event channel. P is the payload type carried by
// emissions on the tag; it exists only at compile time.
//
// Two tags denote the same channel when their names are equal, so both sides
// of a transport agree on a tag by sharing its name.
type Tag[P any] struct {
	name string
}

// DefineTag creates a tag. With a name the tag is exactly that name; without
// one a random 16 character identifier is generated. Panics on an invalid name.
func DefineTag[P any](name ...string) Tag[P] {
	if len(name) == 0 {
		return Tag[P]{name: NewID()}
	}
	failfast.Err(ValidateTag(name[0]))
	return Tag[P]{name: name[0]}
}

// RawTag addresses a channel by name without payload typing
func RawTag(name string) Tag[json.RawMessage] {
	return DefineTag[json.RawMessage](name)
}

// Name returns the wire identifier of the tag
func (t Tag[P]) Name() string {
	return t.name
}

func (t Tag[P]) String() string {
	return t.name
}
