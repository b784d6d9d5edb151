package catalog

import "errors"

var (
	ErrTheatreNotFound = errors.New("theatre not found")
	ErrShowNotFound    = errors.New("show not found")
	ErrMalformedCSV    = errors.New("malformed catalog file")
)
