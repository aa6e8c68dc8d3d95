// Package apperr carries the error taxonomy the HTTP layer maps onto status
// codes: Validation -> 400, Unauthorized -> 401, Forbidden -> 403,
// NotFound -> 404. Unauthorized means "no principal"; Forbidden means the
// principal lacks rights. The two are never conflated.
package apperr

import "github.com/pkg/errors"

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindUnauthorized
)

type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() Kind    { return e.kind }

func Validation(msg string) error   { return &Error{kind: KindValidation, msg: msg} }
func NotFound(msg string) error     { return &Error{kind: KindNotFound, msg: msg} }
func Forbidden(msg string) error    { return &Error{kind: KindForbidden, msg: msg} }
func Unauthorized(msg string) error { return &Error{kind: KindUnauthorized, msg: msg} }

// KindOf walks the wrap chain and returns the first taxonomy kind found,
// KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

func IsValidation(err error) bool   { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsForbidden(err error) bool    { return KindOf(err) == KindForbidden }
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
