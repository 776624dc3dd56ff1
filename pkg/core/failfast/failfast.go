// Package failfast turns programmer errors (nil handlers, empty tag names,
// invalid options) into immediate panics at registration time.
package failfast

import (
	"reflect"
	"runtime/debug"
)

// Violation is the value every failfast panic carries
type Violation struct {
	Subject string // what was checked, e.g. "listener" or "bundle name"
	Reason  string // "is nil", "is empty" or the wrapped error text
	Err     error  // set by Err
	Stack   []byte
}

func (v *Violation) Error() string {
	return "fail-fast: " + v.Subject + " " + v.Reason
}

func (v *Violation) Unwrap() error {
	return v.Err
}

func violate(subject, reason string, err error) {
	panic(&Violation{Subject: subject, Reason: reason, Err: err, Stack: debug.Stack()})
}

// Err panics with a *Violation wrapping err when err is non-nil
func Err(err error) {
	if err != nil {
		violate("check", err.Error(), err)
	}
}

// NotNil panics when v is nil, including typed nil pointers, funcs, maps,
// channels and interfaces.
func NotNil(v any, subject string) {
	if isNil(v) {
		violate(subject, "is nil", nil)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// NotEmpty panics when s is empty
func NotEmpty(s string, subject string) {
	if s == "" {
		violate(subject, "is empty", nil)
	}
}

// Recover converts a failfast panic into an error. Use it deferred at API
// boundaries that must not panic:
//
//	defer failfast.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if v, ok := r.(*Violation); ok {
		*errp = v
		return
	}
	panic(r)
}
