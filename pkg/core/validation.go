package core

import (
	"fmt"
	"time"
)

const (
	// MaxTagLength bounds tag names, derived suffixes included
	MaxTagLength = 255

	// MaxInvokeTimeout bounds WithInvokeTimeout
	MaxInvokeTimeout = 5 * time.Minute
)

// ValidateTag reports whether name can identify a tag
func ValidateTag(name string) error {
	switch {
	case name == "":
		return &Error{Code: CodeInvalidTag, Message: "tag cannot be empty"}
	case len(name) > MaxTagLength:
		return &Error{Code: CodeInvalidTag, Message: fmt.Sprintf("tag %.32q... is longer than %d bytes", name, MaxTagLength)}
	}
	return nil
}

// ValidateTimeout reports whether timeout can bound an invoke call
func ValidateTimeout(timeout time.Duration) error {
	switch {
	case timeout <= 0:
		return &Error{Code: CodeInvalidTimeout, Message: fmt.Sprintf("timeout %s must be positive", timeout)}
	case timeout > MaxInvokeTimeout:
		return &Error{Code: CodeInvalidTimeout, Message: fmt.Sprintf("timeout %s exceeds %s", timeout, MaxInvokeTimeout)}
	}
	return nil
}
