package utils

import "errors"

// ErrNotFound is returned when a record does not exist or belongs to another user.
// Both cases are reported the same way
var ErrNotFound = errors.New("not found or access denied")

// ErrWrongInput indicates bad caller input
type ErrWrongInput struct {
	msg string
	err error
}

// NewErrWrongInput creates new error
func NewErrWrongInput(msg string) error {
	return &ErrWrongInput{msg: msg}
}

// WrapErrWrongInput marks err as an input error
func WrapErrWrongInput(msg string, err error) error {
	return &ErrWrongInput{msg: msg, err: err}
}

func (e *ErrWrongInput) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *ErrWrongInput) Unwrap() error {
	return e.err
}

// IsWrongInput checks if err is the input error
func IsWrongInput(err error) bool {
	var wi *ErrWrongInput
	return errors.As(err, &wi)
}
