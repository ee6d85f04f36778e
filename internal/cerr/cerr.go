// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package cerr provides a string-based error type whose values can be
// declared as constants.
package cerr

// Error is an error whose identity is its text, so two Error values with the
// same message compare equal under errors.Is.
type Error string

func (e Error) Error() string {
	return string(e)
}
