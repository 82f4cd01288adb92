package memory

import "errors"

var (
	// ErrUnnamedVariable is returned for snapshot variables without name.
	ErrUnnamedVariable = errors.New("variable without name")
	// ErrUnknownExpression is returned when an expression does not resolve.
	ErrUnknownExpression = errors.New("unknown expression")
	// ErrExpanded is returned when casting an expanded record.
	ErrExpanded = errors.New("record is expanded")
)
