package parser

import (
	"errors"
	"fmt"
)

// ErrMalformedDatalog matches every FormatError via errors.Is.
var ErrMalformedDatalog = errors.New("malformed datalog")

// IOError reports a datalog that could not be opened, read, or decoded.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("reading datalog: %v", e.Err)
	}
	return fmt.Sprintf("reading datalog %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// FormatError reports a datalog whose content does not have the expected shape.
type FormatError struct {
	Line   int    // 1-based line in the file, 0 if unknown
	Column string // channel name, empty when the problem is row-wide
	Reason string
}

func (e *FormatError) Error() string {
	switch {
	case e.Line > 0 && e.Column != "":
		return fmt.Sprintf("malformed datalog: line %d, column %q: %s", e.Line, e.Column, e.Reason)
	case e.Line > 0:
		return fmt.Sprintf("malformed datalog: line %d: %s", e.Line, e.Reason)
	default:
		return "malformed datalog: " + e.Reason
	}
}

func (e *FormatError) Is(target error) bool {
	return target == ErrMalformedDatalog
}
