package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
)

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
	errs   *multierror.Error
}

func (e ValidationError) Error() string {
	if e.errs == nil {
		return "validation failed"
	}
	return e.errs.Error()
}

// Unwrap exposes the individual field errors.
func (e ValidationError) Unwrap() []error {
	if e.errs == nil {
		return nil
	}
	return e.errs.Errors
}

type fieldError struct {
	Field   string
	Message string
}

func (e fieldError) Error() string {
	return e.Field + ": " + e.Message
}

// validator accumulates field errors in check order.
type validator struct {
	fields map[string]string
	errs   *multierror.Error
}

func (v *validator) check(ok bool, field, msg string) {
	if ok {
		return
	}
	v.add(field, msg)
}

func (v *validator) add(field, msg string) {
	if v.fields == nil {
		v.fields = map[string]string{}
	}
	if _, seen := v.fields[field]; seen {
		return
	}
	v.fields[field] = msg
	v.errs = multierror.Append(v.errs, fieldError{Field: field, Message: msg})
}

// chars counts the characters of s once surrounding whitespace is trimmed.
func chars(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

func (v *validator) err() error {
	if v.errs == nil {
		return nil
	}
	v.errs.ErrorFormat = func(errs []error) string {
		parts := make([]string, 0, len(errs))
		for _, e := range errs {
			parts = append(parts, e.Error())
		}
		return "validation failed: " + strings.Join(parts, "; ")
	}
	return ValidationError{Fields: v.fields, errs: v.errs}
}

// ConflictError means the request is valid but the current state forbids it.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return e.Reason
}

// DuplicateError means the entity already exists.
type DuplicateError struct {
	Entity string
	Key    string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Key)
}

// NotAuthorizedError means the actor lacks the membership the operation needs.
type NotAuthorizedError struct {
	Reason string
}

func (e NotAuthorizedError) Error() string {
	return "not authorized: " + e.Reason
}

// AlreadyResolvedError is returned when selecting on a resolved task.
type AlreadyResolvedError struct {
	TaskID int64
}

func (e AlreadyResolvedError) Error() string {
	return fmt.Sprintf("task %d already resolved", e.TaskID)
}
