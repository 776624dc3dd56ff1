package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Validator checks one aspect of a configuration
type Validator interface {
	Validate(config any) error
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(config any) error

func (f ValidatorFunc) Validate(config any) error {
	return f(config)
}

// FieldError reports a problem with one field, addressed by its Go path
// ("Store.DSN")
type FieldError struct {
	Field   string
	Problem string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Problem
}

// Validate runs every validator and joins all failures into one error
func Validate(config any, validators ...Validator) error {
	var errs []error
	for _, v := range validators {
		if err := v.Validate(config); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// lookup resolves a dot-separated field path in config
func lookup(config any, path string) (reflect.Value, error) {
	current := reflect.ValueOf(config)
	for part := range strings.SplitSeq(path, ".") {
		for current.Kind() == reflect.Pointer || current.Kind() == reflect.Interface {
			current = current.Elem()
		}
		if current.Kind() != reflect.Struct {
			return reflect.Value{}, &FieldError{Field: path, Problem: "no such field"}
		}
		current = current.FieldByName(part)
		if !current.IsValid() {
			return reflect.Value{}, &FieldError{Field: path, Problem: "no such field"}
		}
	}
	return current, nil
}

// RequiredFields fails for every named field holding its zero value
func RequiredFields(fields ...string) Validator {
	return ValidatorFunc(func(config any) error {
		var errs []error
		for _, name := range fields {
			v, err := lookup(config, name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if v.IsZero() {
				errs = append(errs, &FieldError{Field: name, Problem: "is required"})
			}
		}
		return errors.Join(errs...)
	})
}

// RangeValidator requires a numeric field to lie within [min, max]
func RangeValidator(field string, min, max float64) Validator {
	return ValidatorFunc(func(config any) error {
		v, err := lookup(config, field)
		if err != nil {
			return err
		}

		var n float64
		switch {
		case v.CanInt():
			n = float64(v.Int())
		case v.CanUint():
			n = float64(v.Uint())
		case v.CanFloat():
			n = v.Float()
		default:
			return &FieldError{Field: field, Problem: "is not numeric"}
		}
		if n < min || n > max {
			return &FieldError{Field: field, Problem: fmt.Sprintf("%v is outside [%v, %v]", n, min, max)}
		}
		return nil
	})
}

// OneOfValidator requires a field to equal one of allowed
func OneOfValidator[T comparable](field string, allowed ...T) Validator {
	return ValidatorFunc(func(config any) error {
		v, err := lookup(config, field)
		if err != nil {
			return err
		}
		got, ok := v.Interface().(T)
		if !ok {
			return &FieldError{Field: field, Problem: fmt.Sprintf("is %s, not %T", v.Type(), *new(T))}
		}
		if !slices.Contains(allowed, got) {
			return &FieldError{Field: field, Problem: fmt.Sprintf("%v is not one of %v", got, allowed)}
		}
		return nil
	})
}

// When applies v only if cond holds for the config
func When(cond func(config any) bool, v Validator) Validator {
	return ValidatorFunc(func(config any) error {
		if !cond(config) {
			return nil
		}
		return v.Validate(config)
	})
}
